// Package message builds the FCM HTTP v1 request body for a single recipient.
package message

import (
	"encoding/json"
	"strconv"
	"time"
)

// Priority is the android delivery priority.
type Priority string

const (
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
)

const (
	// SoundDefault is the apns sound played for non-silent messages.
	SoundDefault = "default"
	// SoundTypeEnabled and SoundTypeDisabled are the values of data.sound_type.
	SoundTypeEnabled  = "1"
	SoundTypeDisabled = "0"

	dataKeySilent    = "silent"
	dataKeySoundType = "sound_type"
)

// Message is an immutable notification for one recipient. Use Builder to create one.
type Message struct {
	title      string
	body       string
	data       map[string]string
	priority   Priority
	silent     bool
	useSound   bool
	ttlSeconds *int
	token      string
}

func (m Message) Title() string      { return m.title }
func (m Message) Body() string       { return m.body }
func (m Message) Priority() Priority { return m.priority }
func (m Message) Silent() bool       { return m.silent }
func (m Message) UseSound() bool     { return m.useSound }
func (m Message) Token() string      { return m.token }

// TTL returns the time to live in seconds and whether one was set.
func (m Message) TTL() (int, bool) {
	if m.ttlSeconds == nil {
		return 0, false
	}
	return *m.ttlSeconds, true
}

// Data returns a copy of the caller supplied data, without injected keys.
func (m Message) Data() map[string]string {
	return copyData(m.data)
}

// ExpiresAt is the absolute expiration derived from the TTL.
func (m Message) ExpiresAt(now time.Time) (time.Time, bool) {
	ttl, ok := m.TTL()
	if !ok {
		return time.Time{}, false
	}
	return now.Add(time.Duration(ttl) * time.Second), true
}

// Envelope is the request body accepted by the messages:send endpoint.
type Envelope struct {
	Message Payload `json:"message"`
}

// Payload is the content of the top level "message" key.
type Payload struct {
	Token        string            `json:"token,omitempty"`
	Notification Notification      `json:"notification"`
	Android      AndroidConfig     `json:"android"`
	APNS         APNSConfig        `json:"apns"`
	Data         map[string]string `json:"data,omitempty"`
}

type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type AndroidConfig struct {
	Priority Priority `json:"priority"`
	TTL      string   `json:"ttl,omitempty"`
}

type APNSConfig struct {
	Headers *APNSHeaders `json:"headers,omitempty"`
	Payload APNSPayload  `json:"payload"`
}

type APNSHeaders struct {
	Expiration string `json:"apns-expiration,omitempty"`
}

type APNSPayload struct {
	APS APS `json:"aps"`
}

// APS carries either a sound or the content-available marker of silent messages.
type APS struct {
	Sound            string `json:"sound,omitempty"`
	ContentAvailable int    `json:"content-available,omitempty"`
}

// Payload serializes the message. It is a pure function of the message and now.
func (m Message) Payload(now time.Time) Envelope {
	p := Payload{
		Token: m.token,
		Notification: Notification{
			Title: m.title,
			Body:  m.body,
		},
		Android: AndroidConfig{Priority: m.priority},
		APNS: APNSConfig{
			Payload: APNSPayload{APS: APS{Sound: SoundDefault}},
		},
	}

	data := copyData(m.data)
	if m.silent {
		p.APNS.Payload.APS = APS{ContentAvailable: 1}
		data[dataKeySilent] = "true"
	}
	// sound_type goes last so caller data can never override it.
	if m.useSound {
		data[dataKeySoundType] = SoundTypeEnabled
	} else {
		data[dataKeySoundType] = SoundTypeDisabled
	}
	p.Data = data

	if ttl, ok := m.TTL(); ok {
		p.APNS.Headers = &APNSHeaders{
			Expiration: strconv.FormatInt(now.Unix()+int64(ttl), 10),
		}
		p.Android.TTL = strconv.Itoa(ttl) + "s"
	}

	return Envelope{Message: p}
}

// Encode returns the JSON body for now. Map keys are sorted, so equal
// messages encode to identical bytes.
func (m Message) Encode(now time.Time) ([]byte, error) {
	return json.Marshal(m.Payload(now))
}

func copyData(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src)+2)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
