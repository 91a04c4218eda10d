package service

import (
	"errors"
	"strings"

	"github.com/d60-Lab/trustcore/internal/repository"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrContentRejected   = errors.New("content rejected")
	ErrInvalidState      = errors.New("invalid state")
	ErrDependencyFailure = errors.New("dependency failure")
	ErrConflict          = errors.New("concurrent update conflict")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// Guard rule names reported with ErrRateLimited.
const (
	RuleHoneypot        = "honeypot"
	RuleSuspended       = "suspended"
	RuleNewConversation = "new_conversation_limit"
	RuleDuplicate       = "duplicate_content"
	RuleRecipientPrefs  = "recipient_restricted"
)

// RejectError carries a terminal rejection decision. It unwraps to Kind.
type RejectError struct {
	Kind     error
	Rule     string
	Reason   string
	Keywords []string
}

func (e *RejectError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Rule != "" {
		b.WriteString(" [")
		b.WriteString(e.Rule)
		b.WriteString("]")
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

func (e *RejectError) Unwrap() error { return e.Kind }

func rateLimited(rule, reason string) error {
	return &RejectError{Kind: ErrRateLimited, Rule: rule, Reason: reason}
}

// notFound maps a repository miss onto ErrNotFound, leaving other errors intact.
func notFound(err error, what string) error {
	if repository.IsNotFound(err) {
		return &RejectError{Kind: ErrNotFound, Reason: what + " not found"}
	}
	return err
}
