package message

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Builder accumulates message fields. The zero value is not usable; call NewBuilder.
type Builder struct {
	msg Message
}

func NewBuilder() *Builder {
	return &Builder{msg: Message{priority: PriorityNormal}}
}

func (b *Builder) Title(text string) *Builder {
	b.msg.title = text
	return b
}

func (b *Builder) Body(text string) *Builder {
	b.msg.body = text
	return b
}

// Data replaces the message data.
func (b *Builder) Data(data map[string]string) *Builder {
	b.msg.data = copyData(data)
	return b
}

// AddData merges data into the existing data; keys in data win.
func (b *Builder) AddData(data map[string]string) *Builder {
	if b.msg.data == nil {
		b.msg.data = make(map[string]string, len(data))
	}
	for k, v := range data {
		b.msg.data[k] = v
	}
	return b
}

func (b *Builder) Token(token string) *Builder {
	b.msg.token = token
	return b
}

func (b *Builder) TTL(seconds int) *Builder {
	b.msg.ttlSeconds = &seconds
	return b
}

func (b *Builder) ClearTTL() *Builder {
	b.msg.ttlSeconds = nil
	return b
}

// Silent marks the message as a background message. There is no way back.
func (b *Builder) Silent() *Builder {
	b.msg.silent = true
	return b
}

func (b *Builder) PriorityHigh() *Builder {
	b.msg.priority = PriorityHigh
	return b
}

func (b *Builder) UseSound(enabled bool) *Builder {
	b.msg.useSound = enabled
	return b
}

// Build returns an immutable snapshot. The builder may keep being used.
func (b *Builder) Build() Message {
	m := b.msg
	if m.data != nil {
		m.data = copyData(m.data)
	}
	if m.ttlSeconds != nil {
		ttl := *m.ttlSeconds
		m.ttlSeconds = &ttl
	}
	return m
}

type decodedEnvelope struct {
	Message struct {
		Token        string `json:"token"`
		Notification struct {
			Title string `json:"title"`
			Body  string `json:"body"`
		} `json:"notification"`
		Android struct {
			Priority string `json:"priority"`
			TTL      string `json:"ttl"`
		} `json:"android"`
		Data map[string]string `json:"data"`
	} `json:"message"`
}

// Decode rebuilds a Builder from an encoded message. Missing fields fall back
// to defaults. Flags are restored from their serialized markers, so a
// message whose sound was never set decodes the same as one with sound
// explicitly disabled.
func Decode(raw []byte) (*Builder, error) {
	var env decodedEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	in := env.Message

	b := NewBuilder().
		Title(in.Notification.Title).
		Body(in.Notification.Body)

	if in.Android.Priority == string(PriorityHigh) {
		b.PriorityHigh()
	}
	if in.Token != "" {
		b.Token(in.Token)
	}
	if in.Data[dataKeySilent] != "" {
		b.Silent()
	}
	b.UseSound(in.Data[dataKeySoundType] == SoundTypeEnabled)

	// Encode injects these markers; they are flags, not caller data.
	delete(in.Data, dataKeySilent)
	delete(in.Data, dataKeySoundType)
	if len(in.Data) > 0 {
		b.Data(in.Data)
	}

	if in.Android.TTL != "" {
		ttl, err := strconv.Atoi(strings.TrimSuffix(in.Android.TTL, "s"))
		if err != nil {
			return nil, fmt.Errorf("decode message ttl %q: %w", in.Android.TTL, err)
		}
		b.TTL(ttl)
	}
	return b, nil
}
