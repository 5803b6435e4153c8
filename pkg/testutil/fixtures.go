// Package testutil provides shared fixtures and stubs for tests.
package testutil

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/groupfit/server/internal/app/domain/member"
	"github.com/groupfit/server/internal/app/storage"
)

const pngBase64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

// PNG returns a valid 1x1 PNG image.
func PNG(tb testing.TB) []byte {
	tb.Helper()
	b, err := base64.StdEncoding.DecodeString(pngBase64)
	if err != nil {
		tb.Fatalf("decode png fixture: %v", err)
	}
	return b
}

// Members creates one active member per email and returns them in order.
func Members(tb testing.TB, store storage.MemberStore, emails ...string) []member.Member {
	tb.Helper()
	out := make([]member.Member, 0, len(emails))
	for _, email := range emails {
		m, err := store.CreateMember(context.Background(), member.Member{Email: email, IsActive: true})
		if err != nil {
			tb.Fatalf("create member %s: %v", email, err)
		}
		out = append(out, m)
	}
	return out
}

// Actors maps members to actors.
func Actors(members []member.Member) []member.Actor {
	out := make([]member.Actor, len(members))
	for i, m := range members {
		out[i] = member.ActorOf(m)
	}
	return out
}

// Pinger is a storage.Pinger that returns Err.
type Pinger struct {
	Err error
}

var _ storage.Pinger = Pinger{}

func (p Pinger) Ping(context.Context) error { return p.Err }
