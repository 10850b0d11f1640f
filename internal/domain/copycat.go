package domain

// Verdict is the outcome of a copycat check. Higher values are stronger.
type Verdict int

const (
	VerdictNone Verdict = iota
	VerdictNameMatch
	VerdictNameAndDiscriminatorMatch
)

func (v Verdict) String() string {
	switch v {
	case VerdictNameMatch:
		return "name"
	case VerdictNameAndDiscriminatorMatch:
		return "name_and_discriminator"
	default:
		return "none"
	}
}
