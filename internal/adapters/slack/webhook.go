package slack

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/slack-go/slack"

	"github.com/alekspetrov/claudehub/internal/dispatch"
	"github.com/alekspetrov/claudehub/internal/logging"
)

// Header names used by Slack request signing.
const (
	HeaderSignature = "X-Slack-Signature"
	HeaderTimestamp = "X-Slack-Request-Timestamp"
)

// SourceSlashCommand is the Source of every slash command envelope.
const SourceSlashCommand = "slash_command"

// DefaultMaxSkew bounds how far a request timestamp may drift from now.
const DefaultMaxSkew = 5 * time.Minute

// Provider verifies and normalizes Slack slash command requests.
type Provider struct {
	signingSecret []byte
	maxSkew       time.Duration
	now           func() time.Time
	log           *slog.Logger
}

// NewProvider creates a Slack provider. An empty signing secret rejects
// every request.
func NewProvider(signingSecret string) *Provider {
	return &Provider{
		signingSecret: []byte(signingSecret),
		maxSkew:       DefaultMaxSkew,
		now:           time.Now,
		log:           logging.WithComponent("slack"),
	}
}

// Kind implements dispatch.Provider.
func (p *Provider) Kind() dispatch.ProviderKind { return dispatch.ProviderSlack }

// Verify checks the v0 signature and the replay window.
func (p *Provider) Verify(body []byte, header http.Header) error {
	if len(p.signingSecret) == 0 {
		return fmt.Errorf("%w: signing secret not configured", dispatch.ErrUnauthorized)
	}

	timestamp := header.Get(HeaderTimestamp)
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad request timestamp", dispatch.ErrUnauthorized)
	}
	skew := p.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > p.maxSkew {
		return fmt.Errorf("%w: request timestamp outside %s window", dispatch.ErrUnauthorized, p.maxSkew)
	}

	hexSig, ok := strings.CutPrefix(header.Get(HeaderSignature), "v0=")
	if !ok {
		return fmt.Errorf("%w: missing v0 signature", dispatch.ErrUnauthorized)
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return fmt.Errorf("%w: malformed signature", dispatch.ErrUnauthorized)
	}
	if !hmac.Equal(computeMAC(p.signingSecret, timestamp, body), got) {
		return fmt.Errorf("%w: signature mismatch", dispatch.ErrUnauthorized)
	}
	return nil
}

// Sign returns the X-Slack-Signature value for body at timestamp.
func Sign(secret []byte, timestamp string, body []byte) string {
	return "v0=" + hex.EncodeToString(computeMAC(secret, timestamp, body))
}

func computeMAC(secret []byte, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "v0:%s:", timestamp)
	mac.Write(body)
	return mac.Sum(nil)
}

// Parse decodes the form-encoded slash command body into an Envelope.
func (p *Provider) Parse(body []byte, header http.Header) (*dispatch.Envelope, error) {
	req, err := http.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dispatch.ErrInvalidEnvelope, err)
	}
	req.Header = header.Clone()
	if req.Header == nil {
		req.Header = http.Header{}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	cmd, err := slack.SlashCommandParse(req)
	if err != nil {
		return nil, fmt.Errorf("%w: slash command form: %v", dispatch.ErrInvalidEnvelope, err)
	}

	id := cmd.TriggerID
	if id == "" {
		id = uuid.NewString()
	}

	env := &dispatch.Envelope{
		ID:        id,
		Timestamp: p.now(),
		Provider:  dispatch.ProviderSlack,
		Source:    SourceSlashCommand,
		Slack: &dispatch.SlackData{
			TeamID:      cmd.TeamID,
			TeamDomain:  cmd.TeamDomain,
			ChannelID:   cmd.ChannelID,
			ChannelName: cmd.ChannelName,
			UserID:      cmd.UserID,
			UserName:    cmd.UserName,
			Command:     cmd.Command,
			Text:        strings.TrimSpace(cmd.Text),
			ResponseURL: cmd.ResponseURL,
			TriggerID:   cmd.TriggerID,
		},
	}
	env.Event = p.EventType(env)

	p.log.Debug("Normalized slash command", slog.String("summary", p.Describe(env)))
	return env, nil
}

// EventType is "slash_command:" followed by the command, e.g.
// "slash_command:/plan".
func (p *Provider) EventType(env *dispatch.Envelope) string {
	if env.Slack == nil {
		return SourceSlashCommand
	}
	return SourceSlashCommand + ":" + env.Slack.Command
}

// Describe renders a one-line summary of the envelope.
func (p *Provider) Describe(env *dispatch.Envelope) string {
	d := env.Slack
	if d == nil {
		return "slack " + env.Event
	}
	return fmt.Sprintf("slack %s %q by %s in #%s", d.Command, d.Text, d.UserName, d.ChannelName)
}

// Validate checks the identifiers every slash command carries.
func (p *Provider) Validate(env *dispatch.Envelope) error {
	d := env.Slack
	switch {
	case d == nil:
		return fmt.Errorf("%w: no slack data", dispatch.ErrInvalidEnvelope)
	case d.TeamID == "":
		return fmt.Errorf("%w: team_id missing", dispatch.ErrInvalidEnvelope)
	case d.ChannelID == "":
		return fmt.Errorf("%w: channel_id missing", dispatch.ErrInvalidEnvelope)
	case d.UserID == "":
		return fmt.Errorf("%w: user_id missing", dispatch.ErrInvalidEnvelope)
	case !strings.HasPrefix(d.Command, "/"):
		return fmt.Errorf("%w: command %q", dispatch.ErrInvalidEnvelope, d.Command)
	}
	return nil
}
