// Package api exposes the chat endpoint and orchestrates admission
// control, caching, model invocation, and reply shaping.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leochui/tifa-api/internal/convo"
	"github.com/leochui/tifa-api/internal/guard"
	"github.com/leochui/tifa-api/internal/shape"
	"github.com/leochui/tifa-api/pkg/observability"
)

const (
	sessionCookieName = "tifa_session"
	sessionCookieTTL  = 30 * 24 * time.Hour

	maxPromptChars = 255
	maxReplyChars  = 500

	// maxBodyBytes bounds the request body read.
	maxBodyBytes = 16 << 10
)

// Alert event types raised by the handler itself. The governor raises
// its own cooldown/ban events.
const (
	EventOriginBlocked    = "origin_blocked"
	EventCrossSiteBlocked = "cross_site_blocked"
	EventTurnstileMissing = "turnstile_missing"
	EventTurnstileFailed  = "turnstile_failed"
)

// Generator produces model replies. *llm.Client implements it.
type Generator interface {
	GenerateWithFallback(ctx context.Context, prompt string, history []convo.Message) (string, error)
}

// Verifier checks bot-challenge tokens. *turnstile.Client implements it.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// Notifier receives security events. *alert.Dispatcher implements it.
type Notifier interface {
	Notify(event, ip string)
}

// Options wires a Handler's collaborators.
type Options struct {
	AllowedOrigins []string
	Governor       *guard.Governor
	Cache          *convo.Cache
	History        *convo.History
	Model          Generator
	// Verifier is nil when no turnstile secret is configured.
	Verifier Verifier
	// Alerts may be nil.
	Alerts Notifier
	// TrustForwarded allows X-Forwarded-For as an identity source.
	TrustForwarded bool
}

// Handler serves POST /api/ask.
type Handler struct {
	origins        map[string]struct{}
	governor       *guard.Governor
	cache          *convo.Cache
	history        *convo.History
	model          Generator
	verifier       Verifier
	alerts         Notifier
	trustForwarded bool
	now            func() time.Time
}

// NewHandler creates the chat handler.
func NewHandler(opts Options) *Handler {
	origins := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		origins[o] = struct{}{}
	}
	return &Handler{
		origins:        origins,
		governor:       opts.Governor,
		cache:          opts.Cache,
		history:        opts.History,
		model:          opts.Model,
		verifier:       opts.Verifier,
		alerts:         opts.Alerts,
		trustForwarded: opts.TrustForwarded,
		now:            time.Now,
	}
}

type askRequest struct {
	Prompt         string `json:"prompt"`
	TurnstileToken string `json:"turnstileToken"`
}

type askResponse struct {
	Reply  string `json:"reply"`
	Cached bool   `json:"cached,omitempty"`
}

type errorResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// responder carries the per-request response state: the validated
// origin to mirror and the session cookie to attach.
type responder struct {
	w         http.ResponseWriter
	origin    string
	setCookie *http.Cookie
	start     time.Time
}

func (rp *responder) json(status int, body any) {
	h := rp.w.Header()
	h.Set("Content-Type", "application/json")
	if rp.origin != "" {
		h.Set("Access-Control-Allow-Origin", rp.origin)
		h.Add("Vary", "Origin")
	}
	if rp.setCookie != nil {
		http.SetCookie(rp.w, rp.setCookie)
	}
	rp.w.WriteHeader(status)
	_ = json.NewEncoder(rp.w).Encode(body)

	observability.RecordRequest(strconv.Itoa(status), time.Since(rp.start).Seconds())
}

func (rp *responder) fail(status int, msg string) {
	rp.json(status, errorResponse{Error: msg})
}

// ServeHTTP runs the request state machine. Each gate returns
// immediately on failure; there is no fallthrough.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w.Header())
	rp := &responder{w: w, start: h.now()}

	// Origin gate. An unknown origin gets no CORS headers at all.
	origin := r.Header.Get("Origin")
	if _, ok := h.origins[origin]; !ok {
		h.notify(EventOriginBlocked, remoteHost(r))
		rp.fail(http.StatusForbidden, "Forbidden")
		return
	}
	rp.origin = origin

	// Fetch-metadata gate.
	if r.Header.Get("Sec-Fetch-Site") == "cross-site" {
		h.notify(EventCrossSiteBlocked, remoteHost(r))
		rp.fail(http.StatusForbidden, "Forbidden")
		return
	}

	// Method gate.
	if r.Method == http.MethodOptions {
		h.preflight(w, origin)
		return
	}
	if r.Method != http.MethodPost {
		rp.fail(http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// Session resolution. New visitors get a cookie on every response
	// from here on, rejections included.
	sessionID, isNew := h.resolveSession(r)
	if isNew {
		rp.setCookie = sessionCookie(sessionID)
	}

	if h.model == nil {
		rp.fail(http.StatusInternalServerError, "Missing API key")
		return
	}

	// Payload gates.
	if ct := r.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		rp.fail(http.StatusUnsupportedMediaType, "Invalid content type")
		return
	}

	var payload askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		rp.fail(http.StatusBadRequest, "Prompt required")
		return
	}
	prompt := strings.TrimSpace(payload.Prompt)
	if prompt == "" {
		rp.fail(http.StatusBadRequest, "Prompt required")
		return
	}
	if len([]rune(prompt)) > maxPromptChars {
		rp.fail(http.StatusBadRequest, "Prompt too long")
		return
	}

	// Client identity. Fails closed when no trustworthy source exists.
	clientIP, err := h.clientIP(r)
	if err != nil {
		rp.fail(http.StatusForbidden, "Forbidden")
		return
	}

	ctx := r.Context()

	// Admission control.
	decision, err := h.governor.Check(ctx, guard.Identity{IP: clientIP, SessionID: sessionID})
	if err != nil {
		log.Printf("[api] admission check failed: %v", err)
		rp.fail(http.StatusInternalServerError, "Internal error")
		return
	}
	if !decision.Allowed {
		observability.RecordRejection(string(decision.Reason))
		rp.json(http.StatusTooManyRequests, errorResponse{
			Error:      rejectionMessage(decision.Reason),
			RetryAfter: decision.RetryAfter,
		})
		return
	}

	// Bot challenge, skipped for local development origins.
	if h.verifier != nil && !isLocalOrigin(origin) {
		if payload.TurnstileToken == "" {
			h.notify(EventTurnstileMissing, clientIP)
			rp.fail(http.StatusBadRequest, "Turnstile required")
			return
		}
		ok, err := h.verifier.Verify(ctx, payload.TurnstileToken, clientIP)
		if err != nil {
			log.Printf("[api] turnstile verification error: %v", err)
		}
		if !ok {
			h.notify(EventTurnstileFailed, clientIP)
			rp.fail(http.StatusForbidden, "Turnstile failed")
			return
		}
	}

	// Conversation state.
	history, err := h.history.Load(ctx, sessionID)
	if err != nil {
		log.Printf("[api] history load failed: %v", err)
		rp.fail(http.StatusInternalServerError, "Internal error")
		return
	}

	bullets := shape.BulletCount(prompt)
	fingerprint := convo.Fingerprint(prompt, bullets, history)

	// Canonical answers short-circuit the model entirely.
	if answer, ok := convo.Canonical(convo.NormalizeText(prompt)); ok {
		observability.RecordCacheLookup("canonical")
		reply := shapeReply(answer, bullets)
		h.storeCached(ctx, fingerprint, reply)
		h.appendHistory(ctx, sessionID, history, prompt, reply)
		rp.json(http.StatusOK, askResponse{Reply: reply, Cached: true})
		return
	}

	if cached, ok, err := h.cache.Lookup(ctx, fingerprint); err != nil {
		log.Printf("[api] cache lookup failed: %v", err)
	} else if ok {
		observability.RecordCacheLookup("hit")
		reply := shapeReply(cached, bullets)
		h.appendHistory(ctx, sessionID, history, prompt, reply)
		rp.json(http.StatusOK, askResponse{Reply: reply, Cached: true})
		return
	}
	observability.RecordCacheLookup("miss")

	// Model invocation.
	raw, err := h.model.GenerateWithFallback(ctx, decoratePrompt(prompt, bullets), history)
	if err != nil {
		observability.RecordModelCall("error")
		log.Printf("[api] model invocation failed: %v", err)
		rp.fail(http.StatusBadGateway, "AI provider error")
		return
	}
	observability.RecordModelCall("ok")

	// Adequacy check for prose: one regeneration, then the canned
	// fallback rather than a broken reply.
	if bullets == 0 && !shape.Adequate(raw, shape.ShortAnswerRequested(prompt)) {
		regen, err := h.model.GenerateWithFallback(ctx,
			prompt+"\n\nRespond with 2-3 complete sentences.", history)
		if err == nil && shape.Adequate(regen, false) {
			raw = regen
		} else {
			raw = shape.FallbackSummary
		}
	}

	reply := shapeReply(raw, bullets)
	h.storeCached(ctx, fingerprint, reply)
	h.appendHistory(ctx, sessionID, history, prompt, reply)
	rp.json(http.StatusOK, askResponse{Reply: reply})
}

// shapeReply runs the mode-appropriate shaping pipeline and clamps the
// result.
func shapeReply(raw string, bullets int) string {
	var shaped string
	if bullets > 0 {
		shaped = shape.FormatBullets(raw, bullets)
	} else {
		shaped = shape.FinalizeProse(raw)
	}
	return shape.Clamp(shaped, maxReplyChars)
}

// decoratePrompt appends the formatting instruction sent to the model.
func decoratePrompt(prompt string, bullets int) string {
	if bullets > 0 {
		return fmt.Sprintf("%s\n\nFormatting: Respond with exactly %d bullet points. "+
			"Use \"-\" and no extra text. Keep the total response under %d characters.",
			prompt, bullets, maxReplyChars)
	}
	return fmt.Sprintf("%s\n\nKeep the response under %d characters.", prompt, maxReplyChars)
}

// storeCached and appendHistory are best-effort side channels: their
// failures are logged, never surfaced.
func (h *Handler) storeCached(ctx context.Context, fingerprint, reply string) {
	if err := h.cache.Store(ctx, fingerprint, reply); err != nil {
		log.Printf("[api] cache write failed: %v", err)
	}
}

func (h *Handler) appendHistory(ctx context.Context, sessionID string, history []convo.Message, prompt, reply string) {
	updated := append(append([]convo.Message(nil), history...),
		convo.Message{Role: convo.RoleUser, Text: prompt},
		convo.Message{Role: convo.RoleAssistant, Text: reply},
	)
	if err := h.history.Save(ctx, sessionID, updated); err != nil {
		log.Printf("[api] history write failed: %v", err)
	}
}

func (h *Handler) preflight(w http.ResponseWriter, origin string) {
	header := w.Header()
	header.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Content-Type")
	header.Set("Access-Control-Allow-Origin", origin)
	header.Add("Vary", "Origin")
	w.WriteHeader(http.StatusNoContent)
}

// resolveSession reads the session cookie or mints a new token.
func (h *Handler) resolveSession(r *http.Request) (id string, isNew bool) {
	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		return c.Value, false
	}
	return uuid.NewString(), true
}

func sessionCookie(sessionID string) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(sessionCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

var errNoClientIP = errors.New("no trustworthy client address")

// clientIP resolves the caller's address. CF-Connecting-IP is set by
// the edge and always trusted; X-Forwarded-For only when configured.
// Without either, the socket peer is used; a request that offers only
// untrusted proxy headers is rejected.
func (h *Handler) clientIP(r *http.Request) (string, error) {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip, nil
	}
	if h.trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			return strings.TrimSpace(strings.Split(xff, ",")[0]), nil
		}
	}
	if host := remoteHost(r); host != "" {
		return host, nil
	}
	return "", errNoClientIP
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if ip := net.ParseIP(r.RemoteAddr); ip != nil {
			return ip.String()
		}
		return ""
	}
	return host
}

func isLocalOrigin(origin string) bool {
	return strings.HasPrefix(origin, "http://localhost") ||
		strings.HasPrefix(origin, "http://127.0.0.1")
}

func rejectionMessage(reason guard.Reason) string {
	switch reason {
	case guard.ReasonBanned:
		return "Temporarily blocked"
	case guard.ReasonCooldown:
		return "Cooldown active"
	default:
		return "Rate limit exceeded"
	}
}

func setSecurityHeaders(h http.Header) {
	h.Set("Content-Security-Policy", "default-src 'none'")
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("Cache-Control", "no-store")
}

func (h *Handler) notify(event, ip string) {
	observability.RecordAlert(event)
	if h.alerts != nil {
		h.alerts.Notify(event, ip)
	}
}

