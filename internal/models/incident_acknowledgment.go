package models

type AckChannel string

const (
	ChannelWeb   AckChannel = "web"
	ChannelSlack AckChannel = "slack"
	ChannelSMS   AckChannel = "sms"
	ChannelVoice AckChannel = "voice"
)

func (c AckChannel) Valid() bool {
	switch c {
	case ChannelWeb, ChannelSlack, ChannelSMS, ChannelVoice:
		return true
	}
	return false
}

// IncidentAcknowledgment is written once per acknowledgment event. The first
// one is reflected on the incident row; later ones are kept as history.
type IncidentAcknowledgment struct {
	BaseModel

	IncidentID uint       `gorm:"not null;index"`
	UserID     uint       `gorm:"not null;index"`
	Channel    AckChannel `gorm:"not null"`
}
