// Package models contains the patient and triage domain types shared across
// the TriageFlow codebase.
package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	cpfDigits    = regexp.MustCompile(`[^0-9]`)
	validGenders = map[string]bool{
		"M": true, "F": true, "MASCULINO": true, "FEMININO": true, "OUTRO": true,
	}
)

// allDigitsEqual reports whether the string is one digit repeated, like
// "00000000000". Such CPFs pass the checksum but are not valid documents.
func allDigitsEqual(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

// Patient is owned by the intake surface; the triage pipeline only reads it
// to enrich classifier prompts.
type Patient struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CPF       string    `json:"cpf"`
	BirthDate time.Time `json:"birth_date"`
	Gender    string    `json:"gender"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPatient validates and creates a patient record.
func NewPatient(name, cpf string, birthDate time.Time, gender, phone, email string) (*Patient, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("patient name is required")
	}
	if len(name) > 100 {
		return nil, errors.New("patient name cannot exceed 100 characters")
	}

	cleanCPF := cpfDigits.ReplaceAllString(cpf, "")
	if len(cleanCPF) != 11 {
		return nil, errors.New("cpf must contain 11 digits")
	}
	if allDigitsEqual(cleanCPF) {
		return nil, errors.New("invalid cpf")
	}

	if birthDate.IsZero() {
		return nil, errors.New("birth date is required")
	}
	now := time.Now().UTC()
	if birthDate.After(now) {
		return nil, errors.New("birth date cannot be in the future")
	}
	if birthDate.Before(now.AddDate(-120, 0, 0)) {
		return nil, errors.New("birth date is out of range")
	}

	normalizedGender := strings.ToUpper(strings.TrimSpace(gender))
	if !validGenders[normalizedGender] {
		return nil, fmt.Errorf("gender must be one of M, F, MASCULINO, FEMININO, OUTRO; got %q", gender)
	}

	return &Patient{
		ID:        uuid.NewString(),
		Name:      name,
		CPF:       cleanCPF,
		BirthDate: birthDate,
		Gender:    normalizedGender,
		Phone:     phone,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Age in full years at the current date.
func (p *Patient) Age() int {
	now := time.Now().UTC()
	years := now.Year() - p.BirthDate.Year()
	if now.YearDay() < p.BirthDate.YearDay() {
		years--
	}
	return years
}

func (p *Patient) IsChild() bool   { return p.Age() < 12 }
func (p *Patient) IsElderly() bool { return p.Age() >= 65 }
