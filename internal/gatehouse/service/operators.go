package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

type Capability string

const (
	CapRegister       Capability = "register"
	CapEdit           Capability = "edit"
	CapDelete         Capability = "delete"
	CapClearBoard     Capability = "clear_board"
	CapDefinitiveExit Capability = "definitive_exit"
	CapReport         Capability = "report"
)

var knownCapabilities = map[Capability]bool{
	CapRegister:       true,
	CapEdit:           true,
	CapDelete:         true,
	CapClearBoard:     true,
	CapDefinitiveExit: true,
	CapReport:         true,
}

func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(s)))
	if !knownCapabilities[c] {
		return "", fmt.Errorf("unknown capability %q", s)
	}
	return c, nil
}

// Operator is the authenticated identity behind a call. The core trusts the
// caller to have authenticated it and only checks capabilities.
type Operator struct {
	ID           string
	Name         string
	Capabilities map[Capability]bool
}

func (o Operator) Can(c Capability) bool { return o.Capabilities[c] }

// Authorize must run before any storage access.
func Authorize(op Operator, c Capability) error {
	if strings.TrimSpace(op.ID) == "" {
		return fmt.Errorf("%w: no operator", ErrForbidden)
	}
	if !op.Can(c) {
		return fmt.Errorf("%w: operator %q lacks %q", ErrForbidden, op.ID, c)
	}
	return nil
}

// SecretVerifier checks an operator's confirmation secret.
type SecretVerifier interface {
	VerifySecret(operatorID, secret string) error
}

// OperatorSpec describes one directory entry. SecretHash is a bcrypt hash;
// an empty hash means the operator cannot confirm destructive actions.
type OperatorSpec struct {
	ID           string
	Name         string
	Capabilities []string
	SecretHash   string
}

type directoryEntry struct {
	op   Operator
	hash []byte
}

// Directory is a fixed set of operators loaded from configuration.
type Directory struct {
	byID map[string]directoryEntry
}

var ErrUnknownOperator = errors.New("unknown operator")

func NewDirectory(specs []OperatorSpec) (*Directory, error) {
	d := &Directory{byID: make(map[string]directoryEntry, len(specs))}
	for _, s := range specs {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			return nil, errors.New("operator id is required")
		}
		if _, dup := d.byID[id]; dup {
			return nil, fmt.Errorf("duplicate operator %q", id)
		}
		caps := make(map[Capability]bool, len(s.Capabilities))
		for _, raw := range s.Capabilities {
			c, err := ParseCapability(raw)
			if err != nil {
				return nil, fmt.Errorf("operator %q: %w", id, err)
			}
			caps[c] = true
		}
		var hash []byte
		if s.SecretHash != "" {
			if _, err := bcrypt.Cost([]byte(s.SecretHash)); err != nil {
				return nil, fmt.Errorf("operator %q: secret hash: %w", id, err)
			}
			hash = []byte(s.SecretHash)
		}
		name := s.Name
		if name == "" {
			name = id
		}
		d.byID[id] = directoryEntry{op: Operator{ID: id, Name: name, Capabilities: caps}, hash: hash}
	}
	return d, nil
}

func (d *Directory) Lookup(id string) (Operator, error) {
	e, ok := d.byID[strings.TrimSpace(id)]
	if !ok {
		return Operator{}, ErrUnknownOperator
	}
	return e.op, nil
}

// IDs returns the operator ids in sorted order.
func (d *Directory) IDs() []string {
	ids := make([]string, 0, len(d.byID))
	for id := range d.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (d *Directory) VerifySecret(operatorID, secret string) error {
	e, ok := d.byID[strings.TrimSpace(operatorID)]
	if !ok || len(e.hash) == 0 {
		return ErrBadSecret
	}
	if err := bcrypt.CompareHashAndPassword(e.hash, []byte(secret)); err != nil {
		return ErrBadSecret
	}
	return nil
}

// HashSecret produces a hash suitable for OperatorSpec.SecretHash.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("secret is empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
