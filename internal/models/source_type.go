package models

// SourceType discriminates where a mention was collected from.
type SourceType string

const (
	SourceFeed      SourceType = "feed"
	SourceMessaging SourceType = "messaging"
	SourceSocial    SourceType = "social"
)

func (s SourceType) Valid() bool {
	switch s {
	case SourceFeed, SourceMessaging, SourceSocial:
		return true
	}
	return false
}
