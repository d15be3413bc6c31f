// Package emote defines the external emote-expansion collaborator
// contract. Scripted/remote emote-code expansion is out of scope for
// this module; callers needing it supply their own Encoder.
// DefaultEncoder returns its input unchanged; inline emote markup is
// rendered only on the inbound side, by packet.ChatString.
package emote

// Encoder turns a raw emote reference into its expanded textual form.
// Implementations are free to call out to a remote service.
type Encoder interface {
	Encode(raw string) (string, error)
}

// DefaultEncoder is a no-op passthrough: it returns raw unchanged. It
// exists so modelwire.Client always has a non-nil Encoder even when the
// caller doesn't supply one.
type DefaultEncoder struct{}

// Encode returns raw unchanged.
func (DefaultEncoder) Encode(raw string) (string, error) {
	return raw, nil
}
