package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/guilhermelawless/nano-discord-bot/internal/copycat"
	"github.com/guilhermelawless/nano-discord-bot/internal/domain"
	"github.com/guilhermelawless/nano-discord-bot/internal/mute"
	"github.com/guilhermelawless/nano-discord-bot/internal/platform/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const guild = "100"

var (
	sinbinRole  = domain.Marker{ID: "s1", Name: "Sinbin"}
	modRole     = domain.Marker{ID: "m1", Name: "Mods"}
	tradingRole = domain.Marker{ID: "555", Name: "trading"}
)

// --- fakes ---

type fakeDirectory struct {
	members map[domain.Identity]domain.Member
	roles   []domain.Marker
	holders map[string][]domain.Member
	err     error
}

func (d *fakeDirectory) Member(_ context.Context, id domain.Identity) (domain.Member, error) {
	if d.err != nil {
		return domain.Member{}, d.err
	}
	m, ok := d.members[id]
	if !ok {
		return domain.Member{}, domain.ErrMemberAbsent
	}
	return m, nil
}

func (d *fakeDirectory) RoleByName(_ context.Context, _, name string) (domain.Marker, error) {
	for _, r := range d.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return domain.Marker{}, domain.ErrRoleNotFound
}

func (d *fakeDirectory) RoleByID(_ context.Context, _, id string) (domain.Marker, error) {
	for _, r := range d.roles {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.Marker{}, domain.ErrRoleNotFound
}

func (d *fakeDirectory) MembersWithRole(_ context.Context, _, roleID string) ([]domain.Member, error) {
	return d.holders[roleID], nil
}

func (d *fakeDirectory) CommunityName(context.Context, string) (string, error) {
	return "Nano", nil
}

type sent struct {
	target  string
	content string
}

type fakeNotifier struct {
	mu      sync.Mutex
	channel []sent
	direct  []sent
	deleted []string
}

func (n *fakeNotifier) Send(_ context.Context, channelID, content string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.channel = append(n.channel, sent{channelID, content})
	return nil
}

func (n *fakeNotifier) SendDirect(_ context.Context, memberID, content string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.direct = append(n.direct, sent{memberID, content})
	return nil
}

func (n *fakeNotifier) DeleteMessage(_ context.Context, _, messageID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deleted = append(n.deleted, messageID)
	return nil
}

type applyCall struct {
	marker  domain.Marker
	members []domain.Member
	add     bool
}

// fakeExecutor succeeds for every member not listed in fail.
type fakeExecutor struct {
	fail    map[string]bool
	exempt  map[string]bool
	applies []applyCall
	removed []domain.Identity
}

func (e *fakeExecutor) Apply(_ context.Context, marker domain.Marker, members []domain.Member, add bool) domain.MutationResult {
	e.applies = append(e.applies, applyCall{marker, members, add})
	var res domain.MutationResult
	for _, m := range members {
		if e.exempt[m.Identity.MemberID] {
			continue
		}
		if e.fail[m.Identity.MemberID] {
			res.Errored = append(res.Errored, m)
		} else {
			res.Successful = append(res.Successful, m)
		}
	}
	return res
}

func (e *fakeExecutor) RemoveSafely(_ context.Context, member domain.Member, _ domain.Marker) error {
	e.removed = append(e.removed, member.Identity)
	return nil
}

type fakeScheduler struct {
	scheduled map[domain.Identity]time.Duration
	cancelled []domain.Identity
	rejoin    mute.RejoinOutcome
	recovered bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{scheduled: make(map[domain.Identity]time.Duration)}
}

func (s *fakeScheduler) Schedule(_ context.Context, id domain.Identity, d time.Duration) (time.Time, error) {
	s.scheduled[id] = d
	return time.Time{}.Add(d), nil
}

func (s *fakeScheduler) Cancel(_ context.Context, id domain.Identity) (bool, error) {
	s.cancelled = append(s.cancelled, id)
	return true, nil
}

func (s *fakeScheduler) Rejoin(context.Context, domain.Identity) (mute.RejoinOutcome, error) {
	return s.rejoin, nil
}

func (s *fakeScheduler) Recover(ctx context.Context, presence mute.Presence) (mute.RecoverReport, error) {
	s.recovered = true
	return mute.RecoverReport{}, nil
}

func (s *fakeScheduler) Active(context.Context) ([]domain.MuteRecord, error) {
	var active []domain.MuteRecord
	for id, d := range s.scheduled {
		active = append(active, domain.MuteRecord{Identity: id, EndsAt: time.Time{}.Add(d)})
	}
	return active, nil
}

// captureLogs routes the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

type fakeLinks struct {
	blocked bool
	err     error
}

func (l fakeLinks) Blacklisted(context.Context, string) (bool, error) {
	return l.blocked, l.err
}

type fixture struct {
	mod       *Moderator
	directory *fakeDirectory
	notifier  *fakeNotifier
	executor  *fakeExecutor
	scheduler *fakeScheduler
	detector  *copycat.Detector
}

func testRules() *config.Rules {
	return &config.Rules{
		GuildID:              guild,
		OwnerID:              "42",
		RulesChannelID:       "7",
		ModRoles:             []string{"Mods"},
		SinbinRole:           "Sinbin",
		NameChangeChannelID:  "names",
		CopycatAlertRoleID:   "alert",
		CopycatTargetRoleIDs: []string{"team"},
		ModConfiguredRoles: map[string]config.ConfiguredRole{
			"Trading": {ID: "555", Name: "trading channel", Inverted: true},
		},
	}
}

func newFixture(t *testing.T, links LinkChecker) *fixture {
	t.Helper()
	f := &fixture{
		directory: &fakeDirectory{
			members: make(map[domain.Identity]domain.Member),
			roles:   []domain.Marker{sinbinRole, modRole, tradingRole},
			holders: make(map[string][]domain.Member),
		},
		notifier:  &fakeNotifier{},
		executor:  &fakeExecutor{fail: make(map[string]bool)},
		scheduler: newFakeScheduler(),
		detector:  copycat.NewDetector(nil),
	}
	f.mod = NewModerator(testRules(), f.directory, f.notifier, f.executor, f.detector, links)
	f.mod.SetScheduler(f.scheduler)
	return f
}

func member(id string) domain.Member {
	return domain.Member{Identity: domain.Identity{CommunityID: guild, MemberID: id}, Username: "user" + id}
}

func moderator() domain.Member {
	m := member("mod")
	m.Roles = []domain.Marker{modRole}
	return m
}

func cmdCtx(invoker domain.Member) CommandContext {
	return CommandContext{CommunityID: guild, ChannelID: "chan", Invoker: invoker}
}

// --- commands ---

func TestMute_SchedulesAndReports(t *testing.T) {
	f := newFixture(t, nil)

	err := f.mod.Mute(context.Background(), MuteCommand{
		CommandContext: cmdCtx(moderator()),
		Minutes:        2.5,
		DurationText:   "2.5",
		Targets:        []domain.Member{member("a"), member("b")},
	})
	require.NoError(t, err)

	require.Len(t, f.executor.applies, 1)
	assert.True(t, f.executor.applies[0].add)
	assert.Equal(t, sinbinRole, f.executor.applies[0].marker)

	assert.Equal(t, 150*time.Second, f.scheduler.scheduled[member("a").Identity])
	assert.Equal(t, 150*time.Second, f.scheduler.scheduled[member("b").Identity])

	require.Len(t, f.notifier.channel, 1)
	assert.Equal(t, sent{"chan", "Muted <@a>, <@b> for 2.5 minutes. Please follow the <#7>."}, f.notifier.channel[0])
}

func TestMute_OneMinuteAndFailures(t *testing.T) {
	f := newFixture(t, nil)
	f.executor.fail["b"] = true

	err := f.mod.Mute(context.Background(), MuteCommand{
		CommandContext: cmdCtx(moderator()),
		Minutes:        1,
		DurationText:   "1",
		Targets:        []domain.Member{member("a"), member("b")},
	})
	require.NoError(t, err)

	assert.Contains(t, f.scheduler.scheduled, member("a").Identity)
	assert.NotContains(t, f.scheduler.scheduled, member("b").Identity)
	require.Len(t, f.notifier.channel, 1)
	assert.Equal(t,
		"Muted <@a> for 1 minute. Please follow the <#7>.Failed to mute <@b>. <@42> check logs and investigate.",
		f.notifier.channel[0].content)
}

func TestMute_Ignored(t *testing.T) {
	tests := []struct {
		name    string
		invoker domain.Member
		minutes float64
		targets []domain.Member
	}{
		{"non-moderator", member("x"), 5, []domain.Member{member("a")}},
		{"zero duration", moderator(), 0, []domain.Member{member("a")}},
		{"negative duration", moderator(), -3, []domain.Member{member("a")}},
		{"duration overflows", moderator(), 1e12, []domain.Member{member("a")}},
		{"duration just past the limit", moderator(), 200000000, []domain.Member{member("a")}},
		{"duration rounds to zero", moderator(), 1e-12, []domain.Member{member("a")}},
		{"no targets", moderator(), 5, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			err := f.mod.Mute(context.Background(), MuteCommand{
				CommandContext: cmdCtx(tt.invoker),
				Minutes:        tt.minutes,
				Targets:        tt.targets,
			})
			require.NoError(t, err)
			assert.Empty(t, f.executor.applies)
			assert.Empty(t, f.scheduler.scheduled)
			assert.Empty(t, f.notifier.channel)
		})
	}
}

func TestMuteDuration(t *testing.T) {
	tests := []struct {
		minutes float64
		want    time.Duration
		ok      bool
	}{
		{2.5, 150 * time.Second, true},
		{1e6, 1e6 * time.Minute, true},
		{0, 0, false},
		{1e12, 0, false},
		{math.Inf(1), 0, false},
		{math.NaN(), 0, false},
	}
	for _, tt := range tests {
		got, ok := muteDuration(tt.minutes)
		assert.Equal(t, tt.ok, ok, "minutes %v", tt.minutes)
		assert.Equal(t, tt.want, got, "minutes %v", tt.minutes)
	}
}

func TestMute_AllSkippedSendsNothing(t *testing.T) {
	f := newFixture(t, nil)

	err := f.mod.Mute(context.Background(), MuteCommand{
		CommandContext: cmdCtx(moderator()),
		Minutes:        5,
	})
	require.NoError(t, err)
	assert.Empty(t, f.notifier.channel)
}

func TestMute_MissingSinbinRole(t *testing.T) {
	f := newFixture(t, nil)
	f.directory.roles = nil

	err := f.mod.Mute(context.Background(), MuteCommand{
		CommandContext: cmdCtx(moderator()),
		Minutes:        5,
		Targets:        []domain.Member{member("a")},
	})
	require.ErrorIs(t, err, domain.ErrRoleNotFound)
	assert.Empty(t, f.scheduler.scheduled)
}

func TestUnmute_CancelsTimers(t *testing.T) {
	f := newFixture(t, nil)

	err := f.mod.Unmute(context.Background(), UnmuteCommand{
		CommandContext: cmdCtx(moderator()),
		Targets:        []domain.Member{member("a")},
	})
	require.NoError(t, err)

	require.Len(t, f.executor.applies, 1)
	assert.False(t, f.executor.applies[0].add)
	assert.Equal(t, []domain.Identity{member("a").Identity}, f.scheduler.cancelled)
	assert.Equal(t, "Unmuted <@a>. ", f.notifier.channel[0].content)
}

func TestToggleRole(t *testing.T) {
	tests := []struct {
		name    string
		enable  bool
		wantAdd bool
		wantMsg string
	}{
		{"enable inverted removes", true, false, "Enabled trading channel for <@a>."},
		{"disable inverted adds", false, true, "Disabled trading channel for <@a>."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			err := f.mod.ToggleRole(context.Background(), ToggleRoleCommand{
				CommandContext: cmdCtx(moderator()),
				Key:            "Trading",
				Enable:         tt.enable,
				Targets:        []domain.Member{member("a")},
			})
			require.NoError(t, err)

			require.Len(t, f.executor.applies, 1)
			assert.Equal(t, tt.wantAdd, f.executor.applies[0].add)
			assert.Equal(t, tradingRole, f.executor.applies[0].marker)
			assert.Equal(t, tt.wantMsg, f.notifier.channel[0].content)
		})
	}
}

func TestToggleRole_UnknownKeyIgnored(t *testing.T) {
	f := newFixture(t, nil)

	err := f.mod.ToggleRole(context.Background(), ToggleRoleCommand{
		CommandContext: cmdCtx(moderator()),
		Key:            "Memes",
		Enable:         true,
		Targets:        []domain.Member{member("a")},
	})
	require.NoError(t, err)
	assert.Empty(t, f.executor.applies)
}

func TestToggleRole_FailureMessage(t *testing.T) {
	f := newFixture(t, nil)
	f.executor.fail["a"] = true

	err := f.mod.ToggleRole(context.Background(), ToggleRoleCommand{
		CommandContext: cmdCtx(moderator()),
		Key:            "Trading",
		Enable:         true,
		Targets:        []domain.Member{member("a")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Failed to enable trading channel for <@a>. <@42> check logs and investigate.", f.notifier.channel[0].content)
}

func TestRoleID(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.mod.RoleID(ctx, RoleIDCommand{CommandContext: cmdCtx(moderator()), Name: "Sinbin"}))
	require.NoError(t, f.mod.RoleID(ctx, RoleIDCommand{CommandContext: cmdCtx(moderator()), Name: "Nope"}))

	require.Len(t, f.notifier.channel, 2)
	assert.Equal(t, "<@mod>, role id: s1", f.notifier.channel[0].content)
	assert.Equal(t, "<@mod>, role not found", f.notifier.channel[1].content)
}

// --- lifecycle ---

func TestReady_LoadsTargetsAndRecovers(t *testing.T) {
	f := newFixture(t, nil)
	team := member("t1")
	team.Username = "NanoAdmin"
	f.directory.holders["team"] = []domain.Member{team}

	require.NoError(t, f.mod.Ready(context.Background()))

	assert.True(t, f.scheduler.recovered)
	assert.Equal(t, 1, f.detector.Size())
	assert.True(t, f.detector.IsTarget("t1"))
}

func TestReady_LogsRecoverySummary(t *testing.T) {
	logs := captureLogs(t)
	f := newFixture(t, nil)
	f.scheduler.scheduled[member("a").Identity] = time.Hour

	require.NoError(t, f.mod.Ready(context.Background()))
	assert.Contains(t, logs.String(), "Mute recovery complete")
	assert.Contains(t, logs.String(), "active=1")
}

func TestReleaseMute_RemovesSinbin(t *testing.T) {
	f := newFixture(t, nil)
	id := member("a").Identity

	f.mod.ReleaseMute(context.Background(), id)
	assert.Equal(t, []domain.Identity{id}, f.executor.removed)
}

func TestPresence(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	muted := member("a")
	muted.Roles = []domain.Marker{sinbinRole}
	f.directory.members[muted.Identity] = muted
	f.directory.members[member("b").Identity] = member("b")

	present, err := f.mod.IsMemberPresent(ctx, muted.Identity)
	require.NoError(t, err)
	assert.True(t, present)

	present, err = f.mod.IsMemberPresent(ctx, member("gone").Identity)
	require.NoError(t, err)
	assert.False(t, present)

	has, err := f.mod.HasMarker(ctx, muted.Identity)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = f.mod.HasMarker(ctx, member("b").Identity)
	require.NoError(t, err)
	assert.False(t, has)

	unnamed := member("c")
	unnamed.Roles = []domain.Marker{{ID: sinbinRole.ID}}
	f.directory.members[unnamed.Identity] = unnamed
	has, err = f.mod.HasMarker(ctx, unnamed.Identity)
	require.NoError(t, err)
	assert.True(t, has, "role matched by ID when its name is unresolved")
}

func TestPresence_TransientError(t *testing.T) {
	f := newFixture(t, nil)
	f.directory.err = errors.New("gateway timeout")

	_, err := f.mod.IsMemberPresent(context.Background(), member("a").Identity)
	assert.Error(t, err)
}

// --- members ---

func TestMemberJoined_RestoresMute(t *testing.T) {
	f := newFixture(t, nil)
	f.scheduler.rejoin = mute.RejoinStillMuted

	require.NoError(t, f.mod.MemberJoined(context.Background(), member("a")))

	require.Len(t, f.executor.applies, 1)
	assert.True(t, f.executor.applies[0].add)
	assert.Equal(t, sinbinRole, f.executor.applies[0].marker)
}

func TestMemberJoined_RestoreOutcomeLogged(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*fakeExecutor)
		want    string
		notWant string
	}{
		{"restored", func(*fakeExecutor) {}, "mute restored", "Could not re-apply"},
		{"re-apply failed", func(e *fakeExecutor) { e.fail = map[string]bool{"a": true} }, "Could not re-apply", "mute restored"},
		{"exempt member", func(e *fakeExecutor) { e.exempt = map[string]bool{"a": true} }, "is exempt", "mute restored"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := captureLogs(t)
			f := newFixture(t, nil)
			f.scheduler.rejoin = mute.RejoinStillMuted
			tt.setup(f.executor)

			require.NoError(t, f.mod.MemberJoined(context.Background(), member("a")))
			assert.Contains(t, logs.String(), tt.want)
			assert.NotContains(t, logs.String(), tt.notWant)
		})
	}
}

func TestMemberJoined_NotMutedLeavesRoles(t *testing.T) {
	for _, outcome := range []mute.RejoinOutcome{mute.RejoinNotMuted, mute.RejoinExpired} {
		t.Run(outcome.String(), func(t *testing.T) {
			f := newFixture(t, nil)
			f.scheduler.rejoin = outcome

			require.NoError(t, f.mod.MemberJoined(context.Background(), member("a")))
			assert.Empty(t, f.executor.applies)
		})
	}
}

func TestMemberJoined_Welcome(t *testing.T) {
	f := newFixture(t, nil)
	f.mod.rules.WelcomeMessage = "read the rules"

	require.NoError(t, f.mod.MemberJoined(context.Background(), member("a")))

	bot := member("bot")
	bot.Bot = true
	require.NoError(t, f.mod.MemberJoined(context.Background(), bot))

	require.Len(t, f.notifier.direct, 1)
	assert.Equal(t, sent{"a", "Welcome <@a> to Nano:\nread the rules"}, f.notifier.direct[0])
}

func loadTargets(f *fixture) {
	admin := member("t1")
	admin.Username = "Admin"
	admin.Discriminator = "1234"
	f.detector.Load([]copycat.Target{{
		MemberID:      admin.Identity.MemberID,
		Username:      admin.Username,
		Discriminator: admin.Discriminator,
	}})
}

func TestMemberJoined_CopycatAlert(t *testing.T) {
	f := newFixture(t, nil)
	loadTargets(f)

	fake := member("x")
	fake.Username = "Adm1n"
	fake.Discriminator = "1234"
	require.NoError(t, f.mod.MemberJoined(context.Background(), fake))

	require.Len(t, f.notifier.channel, 1)
	assert.Equal(t, sent{"names", "^^ <@&alert> potential impersonator\nsince discriminator matches, may be a ban in the future"}, f.notifier.channel[0])
}

func TestMemberUpdated_Announcements(t *testing.T) {
	f := newFixture(t, nil)
	before := member("a")
	before.Username = "alice"
	before.Discriminator = "0001"
	after := before
	after.Username = "alicia"
	after.Discriminator = "0002"
	after.Nickname = "ali"

	require.NoError(t, f.mod.MemberUpdated(context.Background(), &before, after))

	require.Len(t, f.notifier.channel, 3)
	assert.Equal(t, "`alice` has changed their username to `alicia`: <@a>", f.notifier.channel[0].content)
	assert.Equal(t, "`alicia` has changed their discriminator from #0001 to #0002: <@a>", f.notifier.channel[1].content)
	assert.Equal(t, "`alice` has changed their nickname to `ali`: <@a>", f.notifier.channel[2].content)
}

func TestMemberUpdated_UnknownBeforeIsIgnored(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.mod.MemberUpdated(context.Background(), nil, member("a")))
	assert.Empty(t, f.notifier.channel)
}

func TestMemberUpdated_ProtectedMemberNeverAlerts(t *testing.T) {
	f := newFixture(t, nil)
	loadTargets(f)

	before := member("t1")
	before.Username = "Admin"
	after := before
	after.Nickname = "Admin (away)"

	require.NoError(t, f.mod.MemberUpdated(context.Background(), &before, after))

	require.Len(t, f.notifier.channel, 1)
	assert.Contains(t, f.notifier.channel[0].content, "has changed their nickname")
}

// --- links ---

func TestModerateLinks(t *testing.T) {
	tests := []struct {
		name        string
		links       LinkChecker
		textChannel bool
		wantRemoved bool
	}{
		{"blacklisted", fakeLinks{blocked: true}, true, true},
		{"clean", fakeLinks{}, true, false},
		{"direct message", fakeLinks{blocked: true}, false, false},
		{"checker disabled", nil, true, false},
		{"lookup error keeps message", fakeLinks{err: errors.New("rate limited")}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.links)
			removed, err := f.mod.ModerateLinks(context.Background(), Message{
				ID:          "m1",
				ChannelID:   "chan",
				Author:      member("a"),
				Content:     "https://redd.it/abcdef",
				TextChannel: tt.textChannel,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantRemoved, removed)

			if tt.wantRemoved {
				assert.Equal(t, []string{"m1"}, f.notifier.deleted)
				require.Len(t, f.notifier.channel, 1)
				assert.Equal(t, "<@a>, "+blacklistNotice, f.notifier.channel[0].content)
			} else {
				assert.Empty(t, f.notifier.deleted)
			}
		})
	}
}
