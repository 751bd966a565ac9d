// Package release records what a publish produced.
//
// After a publish the Publisher hashes the index and settings that landed
// in the target state, wraps them in a manifest, optionally signs it with a
// KMS key and stores the envelope next to the index. An SSM parameter can
// point at the hash of the published manifest.
package release

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/cryptoutil"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/log"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/publish"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/site"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/siteerr"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/store"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/xerrors"
)

// PayloadType identifies manifest envelopes.
const PayloadType = "application/vnd.linnemanlabs.siteadmin.release+json"

type Manifest struct {
	Version        int        `json:"version"`
	From           site.State `json:"from"`
	State          site.State `json:"state"`
	PublishedAt    time.Time  `json:"publishedAt"`
	Pages          int        `json:"pages"`
	PagesCopied    int        `json:"pagesCopied"`
	SettingsCopied bool       `json:"settingsCopied"`
	Warnings       int        `json:"warnings"`
	IndexSHA256    string     `json:"indexSha256"`
	SettingsSHA256 string     `json:"settingsSha256,omitempty"`
}

// Envelope is the stored form. Payload holds the exact manifest bytes that
// were hashed and signed.
type Envelope struct {
	PayloadType string `json:"payloadType"`
	Payload     []byte `json:"payload"`
	SHA256      string `json:"sha256"`
	KeyID       string `json:"keyId,omitempty"`
	Signature   string `json:"signature,omitempty"`
}

type Signer interface {
	Sign(ctx context.Context, message []byte) ([]byte, error)
	KeyID() string
}

type Verifier interface {
	VerifySignature(ctx context.Context, message, signature []byte) error
}

// Observer receives the hash of every recorded release.
type Observer interface {
	SetRelease(sha256 string)
}

type Options struct {
	Site   *store.SiteStore
	Logger log.Logger

	// Optional.
	Signer   Signer
	Verifier Verifier
	Pointer  *SSMPointer
	Observer Observer
}

type Publisher struct {
	site     *store.SiteStore
	logger   log.Logger
	signer   Signer
	verifier Verifier
	pointer  *SSMPointer
	obs      Observer

	last atomic.Value
}

func New(opts Options) (*Publisher, error) {
	if opts.Site == nil {
		return nil, xerrors.New("release: site store is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &Publisher{
		site:     opts.Site,
		logger:   opts.Logger.With("component", "release"),
		signer:   opts.Signer,
		verifier: opts.Verifier,
		pointer:  opts.Pointer,
		obs:      opts.Observer,
	}, nil
}

var _ publish.Releaser = (*Publisher)(nil)

// Release writes the manifest for res and moves the pointer to it.
func (p *Publisher) Release(ctx context.Context, res publish.Result) (publish.ReleaseInfo, error) {
	indexRaw, found, err := p.site.ReadRaw(ctx, store.IndexKey(res.To))
	if err != nil {
		return publish.ReleaseInfo{}, err
	}
	if !found {
		return publish.ReleaseInfo{}, xerrors.Newf("no %s index to release", res.To)
	}
	m := Manifest{
		Version:        1,
		From:           res.From,
		State:          res.To,
		PublishedAt:    res.PublishedAt.UTC(),
		Pages:          len(res.Index.Pages),
		PagesCopied:    res.PagesCopied,
		SettingsCopied: res.SettingsCopied,
		Warnings:       len(res.Warnings),
		IndexSHA256:    cryptoutil.SHA256Hex(indexRaw),
	}
	settingsRaw, found, err := p.site.ReadRaw(ctx, store.SettingsKey(res.To))
	if err != nil {
		return publish.ReleaseInfo{}, err
	}
	if found {
		m.SettingsSHA256 = cryptoutil.SHA256Hex(settingsRaw)
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return publish.ReleaseInfo{}, xerrors.Wrap(err, "encode release manifest")
	}
	env := Envelope{
		PayloadType: PayloadType,
		Payload:     payload,
		SHA256:      cryptoutil.SHA256Hex(payload),
	}
	if p.signer != nil {
		sig, err := p.signer.Sign(ctx, payload)
		if err != nil {
			return publish.ReleaseInfo{}, xerrors.Wrap(err, "sign release manifest")
		}
		env.KeyID = p.signer.KeyID()
		env.Signature = base64.StdEncoding.EncodeToString(sig)
	}

	raw, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return publish.ReleaseInfo{}, xerrors.Wrap(err, "encode release envelope")
	}
	key := store.ReleaseKey(res.To)
	if err := p.site.WriteRaw(ctx, key, raw); err != nil {
		return publish.ReleaseInfo{}, err
	}
	// the pointer, header and metric track the published state only
	if res.To == site.Published {
		if p.pointer != nil {
			if err := p.pointer.Set(ctx, env.SHA256); err != nil {
				return publish.ReleaseInfo{}, err
			}
		}
		p.last.Store(env.SHA256)
		if p.obs != nil {
			p.obs.SetRelease(env.SHA256)
		}
	}

	p.logger.Info(ctx, "release recorded",
		"state", res.To,
		"sha256", env.SHA256,
		"signed", env.Signature != "",
		"key", key,
	)
	return publish.ReleaseInfo{Key: key, SHA256: env.SHA256, Signed: env.Signature != ""}, nil
}

// Current describes the stored release of one state.
type Current struct {
	Manifest Manifest `json:"manifest"`
	SHA256   string   `json:"sha256"`
	Signed   bool     `json:"signed"`
	Verified bool     `json:"verified"`
	// PointerMatch is nil when no pointer is configured or state is not
	// the published one.
	PointerMatch *bool `json:"pointerMatch,omitempty"`
}

// Current reads and checks the release recorded for state. A configured
// verifier makes unsigned or badly signed manifests an error.
func (p *Publisher) Current(ctx context.Context, state site.State) (Current, error) {
	state, err := site.ParseState(string(state))
	if err != nil {
		return Current{}, err
	}
	raw, found, err := p.site.ReadRaw(ctx, store.ReleaseKey(state))
	if err != nil {
		return Current{}, err
	}
	if !found {
		return Current{}, siteerr.Newf(siteerr.CodeNotFound, "no release recorded for %s", state).
			WithMeta("state", state)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Current{}, xerrors.Wrap(err, "decode release envelope")
	}
	if env.PayloadType != PayloadType {
		return Current{}, xerrors.Newf("unexpected release payload type %q", env.PayloadType)
	}
	hash := cryptoutil.SHA256Hex(env.Payload)
	if !cryptoutil.HashEqual(hash, env.SHA256) {
		return Current{}, xerrors.Newf("release manifest hash mismatch: stored %s, computed %s", env.SHA256, hash)
	}

	cur := Current{SHA256: hash, Signed: env.Signature != ""}
	if p.verifier != nil {
		if !cur.Signed {
			return Current{}, xerrors.New("release manifest is not signed")
		}
		sig, err := base64.StdEncoding.DecodeString(env.Signature)
		if err != nil {
			return Current{}, xerrors.Wrap(err, "decode release signature")
		}
		if err := p.verifier.VerifySignature(ctx, env.Payload, sig); err != nil {
			return Current{}, xerrors.Wrap(err, "verify release signature")
		}
		cur.Verified = true
	}
	if err := json.Unmarshal(env.Payload, &cur.Manifest); err != nil {
		return Current{}, xerrors.Wrap(err, "decode release manifest")
	}
	if p.pointer != nil && state == site.Published {
		ptr, err := p.pointer.Get(ctx)
		if err != nil {
			return Current{}, err
		}
		match := cryptoutil.HashEqual(ptr, hash)
		cur.PointerMatch = &match
	}
	if state == site.Published {
		p.last.Store(hash)
	}
	return cur, nil
}

// LastReleaseSHA256 returns the hash of the newest published release this
// process recorded or read, or "" before there is one.
func (p *Publisher) LastReleaseSHA256() string {
	s, _ := p.last.Load().(string)
	return s
}
