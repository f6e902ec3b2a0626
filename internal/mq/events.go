package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inkwell-blog/apiserver/types"
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "posts"

// PostEvent is the payload published after a post is written.
type PostEvent struct {
	Event    string    `json:"event"`
	PostID   uuid.UUID `json:"post_id"`
	AuthorID uuid.UUID `json:"author_id"`
	Title    string    `json:"title"`
	Cover    string    `json:"cover,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher announces post writes on a single channel.
type Publisher struct {
	backend Backend
	channel string
}

func NewPublisher(backend Backend, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{backend: backend, channel: channel}
}

// PublishPostEvent encodes post as a PostEvent and publishes it with the
// event name as the "event" attribute.
func (p *Publisher) PublishPostEvent(ctx context.Context, event string, post types.Post) error {
	data, err := json.Marshal(PostEvent{
		Event:    event,
		PostID:   post.ID,
		AuthorID: post.Author.ID,
		Title:    post.Title,
		Cover:    post.Cover,
		At:       post.UpdatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	_, err = p.backend.Publish(ctx, p.channel, data, map[string]string{"event": event})
	return err
}

// Close closes the underlying backend.
func (p *Publisher) Close() error {
	return p.backend.Close()
}

// ConsumePostEvents subscribes to channel and hands decoded events to fn.
// Undecodable messages are acknowledged and dropped.
func ConsumePostEvents(ctx context.Context, backend Backend, channel string, fn func(context.Context, PostEvent) error) error {
	if channel == "" {
		channel = DefaultChannel
	}
	return backend.Subscribe(ctx, channel, func(ctx context.Context, msg Message) error {
		event, err := DecodePostEvent(msg)
		if err != nil {
			return nil
		}
		return fn(ctx, event)
	})
}

// DecodePostEvent parses a message produced by Publisher.
func DecodePostEvent(msg Message) (PostEvent, error) {
	var event PostEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return PostEvent{}, fmt.Errorf("decode post event %s: %w", msg.ID, err)
	}
	if event.Event == "" {
		event.Event = msg.Attributes["event"]
	}
	if event.Event == "" || event.PostID == uuid.Nil {
		return PostEvent{}, errors.New("post event is missing its name or post id")
	}
	return event, nil
}
