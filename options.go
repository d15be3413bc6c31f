package modelwire

import (
	"log/slog"
	"time"

	"github.com/corvid-labs/modelwire/emote"
	"github.com/corvid-labs/modelwire/httpfetch"
	"github.com/corvid-labs/modelwire/registry"
)

type options struct {
	useWebSockets      bool
	camYou             bool
	cachedServerConfig bool

	silenceTimeout      time.Duration
	stateSilenceTimeout time.Duration
	loginTimeout        time.Duration
	connectionTimeout   time.Duration

	host    string
	altHost string

	username string
	password string

	emoteEncoder emote.Encoder
	getter       httpfetch.Getter
	logger       *slog.Logger
	registry     *registry.Registry
}

func defaultOptions() options {
	return options{
		useWebSockets:       true,
		silenceTimeout:      90 * time.Second,
		stateSilenceTimeout: 120 * time.Second,
		loginTimeout:        30 * time.Second,
		host:                "example.com",
		emoteEncoder:        emote.DefaultEncoder{},
		logger:              slog.Default(),
	}
}

// Option configures a Client.
type Option func(*options)

// WithWebSockets selects the text/WebSocket dialect (true, the default)
// or the binary socket dialect (false).
func WithWebSockets(enabled bool) Option {
	return func(o *options) { o.useWebSockets = enabled }
}

// WithCamYou selects the alternate site host and username prefix.
func WithCamYou(enabled bool) Option {
	return func(o *options) { o.camYou = enabled }
}

// WithCachedServerConfig skips the server-config fetch before dialing.
func WithCachedServerConfig(enabled bool) Option {
	return func(o *options) { o.cachedServerConfig = enabled }
}

// WithSilenceTimeout overrides the any-packet silence threshold.
func WithSilenceTimeout(d time.Duration) Option {
	return func(o *options) { o.silenceTimeout = d }
}

// WithStateSilenceTimeout overrides the state-packet silence threshold
// (only enforced once logged in).
func WithStateSilenceTimeout(d time.Duration) Option {
	return func(o *options) { o.stateSilenceTimeout = d }
}

// WithLoginTimeout overrides the LOGIN response deadline.
func WithLoginTimeout(d time.Duration) Option {
	return func(o *options) { o.loginTimeout = d }
}

// WithConnectionTimeout overrides the initial Connect deadline.
func WithConnectionTimeout(d time.Duration) Option {
	return func(o *options) { o.connectionTimeout = d }
}

// WithHost sets the primary site host (e.g. "chat.example.com"), used
// both for server-config discovery and as the EXTDATA fetch host.
func WithHost(host string) Option {
	return func(o *options) { o.host = host }
}

// WithAltHost sets the alternate ("camYou"-style) site host.
func WithAltHost(host string) Option {
	return func(o *options) { o.altHost = host }
}

// WithCredentials sets the username/password used by Connect(doLogin=true).
func WithCredentials(username, password string) Option {
	return func(o *options) { o.username = username; o.password = password }
}

// WithEmoteEncoder overrides the default no-op emote encoder.
func WithEmoteEncoder(enc emote.Encoder) Option {
	return func(o *options) {
		if enc != nil {
			o.emoteEncoder = enc
		}
	}
}

// WithHTTPGetter overrides the default net/http-backed Getter used for
// server-config discovery and EXTDATA indirection.
func WithHTTPGetter(g httpfetch.Getter) Option {
	return func(o *options) { o.getter = g }
}

// WithLogger sets the structured logger used throughout the client.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRegistry shares an externally-owned registry across multiple
// clients, instead of each Client constructing its own. Per the design
// notes, the registry's reset is refcounted by logged-in client count,
// so sharing one registry across clients is the intended multi-client
// setup.
func WithRegistry(r *registry.Registry) Option {
	return func(o *options) { o.registry = r }
}
