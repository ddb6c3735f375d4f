package planservice

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/heirloom/internal/apperr"
	"github.com/starford/heirloom/internal/liveness"
	"github.com/starford/heirloom/internal/models"
	"github.com/starford/heirloom/internal/secret"
)

// InheritorInput describes one beneficiary. Exactly one of Address or
// SecretQuestion/SecretAnswer identifies the beneficiary.
type InheritorInput struct {
	Address             string `json:"address,omitempty"`
	SharePercentage     int    `json:"share_percentage"`
	Name                string `json:"name,omitempty"`
	Email               string `json:"email,omitempty"`
	Phone               string `json:"phone,omitempty"`
	SecretQuestion      string `json:"secret_question,omitempty"`
	SecretAnswer        string `json:"secret_answer,omitempty"`
	ShareSecretQuestion bool   `json:"share_secret_question,omitempty"`
}

// Validate implements validation.Validatable.
func (in InheritorInput) Validate() error {
	usesAddress := strings.TrimSpace(in.Address) != "" && NormalizeAddress(in.Address) != models.ZeroAddress
	usesSecret := strings.TrimSpace(in.SecretQuestion) != "" || strings.TrimSpace(in.SecretAnswer) != ""
	switch {
	case usesAddress && usesSecret:
		return errors.New("verification method conflict: give either an address or a secret question, not both")
	case !usesAddress && !usesSecret:
		return errors.New("an address or a secret question and answer is required")
	}
	return validation.ValidateStruct(&in,
		validation.Field(&in.SharePercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&in.Address, validation.When(usesAddress, validation.By(hexAddress))),
		validation.Field(&in.SecretQuestion, validation.When(usesSecret, validation.Required)),
		validation.Field(&in.SecretAnswer, validation.When(usesSecret, validation.Required)),
		validation.Field(&in.Email, is.EmailFormat),
	)
}

// TokenInput describes one tracked asset.
type TokenInput struct {
	Address string `json:"address,omitempty"`
	Type    string `json:"type"`
}

// Validate implements validation.Validatable.
func (in TokenInput) Validate() error {
	native := strings.ToUpper(in.Type) == string(models.TokenNative)
	return validation.ValidateStruct(&in,
		validation.Field(&in.Type, validation.Required, validation.By(func(v any) error {
			switch models.TokenType(strings.ToUpper(v.(string))) {
			case models.TokenERC20, models.TokenHTS, models.TokenNative:
				return nil
			}
			return fmt.Errorf("must be one of ERC20, HTS, NATIVE")
		})),
		validation.Field(&in.Address,
			validation.When(!native, validation.Required, validation.By(hexAddress), validation.By(nonZero)),
			validation.When(native, validation.By(zeroOrEmpty)),
		),
	)
}

// CreatePlanInput is the payload for CreatePlan.
type CreatePlanInput struct {
	OwnerAddress           string           `json:"owner_address"`
	OwnerEmail             string           `json:"owner_email,omitempty"`
	Inheritors             []InheritorInput `json:"inheritors"`
	Tokens                 []TokenInput     `json:"tokens"`
	CheckInIntervalSeconds int64            `json:"check_in_interval_seconds"`
}

// Validate implements validation.Validatable.
func (in CreatePlanInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.OwnerAddress, validation.Required, validation.By(hexAddress), validation.By(nonZero)),
		validation.Field(&in.OwnerEmail, is.EmailFormat),
		validation.Field(&in.Inheritors, validation.Required),
		validation.Field(&in.Tokens),
		validation.Field(&in.CheckInIntervalSeconds, validation.Required, validation.Min(int64(1)), validation.Max(liveness.MaxIntervalSeconds)),
	)
}

// UpdatePlanInput carries the fields to replace; nil fields are left unchanged.
type UpdatePlanInput struct {
	OwnerEmail             *string           `json:"owner_email,omitempty"`
	Inheritors             *[]InheritorInput `json:"inheritors,omitempty"`
	Tokens                 *[]TokenInput     `json:"tokens,omitempty"`
	CheckInIntervalSeconds *int64            `json:"check_in_interval_seconds,omitempty"`
}

// Validate implements validation.Validatable.
func (in UpdatePlanInput) Validate() error {
	if in.OwnerEmail == nil && in.Inheritors == nil && in.Tokens == nil && in.CheckInIntervalSeconds == nil {
		return errors.New("nothing to update")
	}
	return validation.ValidateStruct(&in,
		validation.Field(&in.OwnerEmail, is.EmailFormat),
		validation.Field(&in.Inheritors, validation.NilOrNotEmpty),
		validation.Field(&in.CheckInIntervalSeconds, validation.Min(int64(1)), validation.Max(liveness.MaxIntervalSeconds)),
	)
}

// NormalizeAddress lower-cases and trims an address.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// buildInheritors validates cross-inheritor invariants and converts inputs,
// hashing secret answers.
func buildInheritors(ins []InheritorInput, owner string) ([]models.Inheritor, error) {
	if err := validation.Validate(ins); err != nil {
		return nil, badRequest(err)
	}
	out := make([]models.Inheritor, 0, len(ins))
	seen := make(map[string]struct{}, len(ins))
	total := 0
	for i, in := range ins {
		total += in.SharePercentage
		h := models.Inheritor{
			SharePercentage:     in.SharePercentage,
			Name:                strings.TrimSpace(in.Name),
			Email:               strings.TrimSpace(in.Email),
			Phone:               strings.TrimSpace(in.Phone),
			ShareSecretQuestion: in.ShareSecretQuestion,
		}
		if strings.TrimSpace(in.SecretAnswer) != "" {
			h.Address = models.ZeroAddress
			h.SecretQuestion = strings.TrimSpace(in.SecretQuestion)
			h.SecretAnswerHash = secret.Hash(in.SecretAnswer)
		} else {
			h.Address = NormalizeAddress(in.Address)
			if h.Address == owner {
				return nil, apperr.Newf(apperr.ErrBadRequest, "inheritors[%d]: owner cannot inherit from own plan", i)
			}
			if _, dup := seen[h.Address]; dup {
				return nil, apperr.Newf(apperr.ErrBadRequest, "inheritors[%d]: duplicate address %s", i, h.Address)
			}
			seen[h.Address] = struct{}{}
		}
		out = append(out, h)
	}
	if total > 100 {
		return nil, apperr.Newf(apperr.ErrBadRequest, "inheritor shares total %d%%, must not exceed 100%%", total)
	}
	return out, nil
}

// buildTokens normalizes, de-duplicates and checks the native sentinel rule.
func buildTokens(ins []TokenInput) ([]models.Token, error) {
	if err := validation.Validate(ins); err != nil {
		return nil, badRequest(err)
	}
	out := make([]models.Token, 0, len(ins))
	seen := make(map[string]struct{}, len(ins))
	for _, in := range ins {
		tok := models.Token{Address: NormalizeAddress(in.Address), Type: models.TokenType(strings.ToUpper(in.Type))}
		if tok.Type == models.TokenNative {
			tok.Address = models.ZeroAddress
		}
		if _, dup := seen[tok.Address]; dup {
			continue
		}
		seen[tok.Address] = struct{}{}
		out = append(out, tok)
	}
	return out, nil
}

func badRequest(err error) error {
	return apperr.New(apperr.ErrBadRequest, err.Error())
}

func hexAddress(v any) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	if !common.IsHexAddress(strings.TrimSpace(s)) {
		return errors.New("must be a 0x-prefixed 20-byte hex address")
	}
	return nil
}

func nonZero(v any) error {
	s, _ := v.(string)
	if s != "" && NormalizeAddress(s) == models.ZeroAddress {
		return errors.New("must not be the zero address")
	}
	return nil
}

func zeroOrEmpty(v any) error {
	s, _ := v.(string)
	if s != "" && NormalizeAddress(s) != models.ZeroAddress {
		return errors.New("native token must use the zero address")
	}
	return nil
}
