package message

import (
	"math/big"
	"time"
)

const (
	maxMessageAge   = 3600 * time.Second
	maxClockSkew    = 300 * time.Second
	hexDigestLength = 64 // 32 bytes, hex-encoded
)

// Validator checks messages against the global timelock bounds and, when a
// RelayerAddress is configured, that the message was actually signed by
// that coordinator key; those bounds are config-driven (pkg/config), so
// validation needs an instance rather than a free function.
type Validator struct {
	MinTimelockS   int64
	MaxTimelockS   int64
	RelayerAddress string
}

// NewValidator constructs a Validator from the configured timelock bounds.
// relayerAddress is optional; an empty string disables signer-identity
// checking (useful in tests that sign with an arbitrary key).
func NewValidator(minTimelockS, maxTimelockS int64, relayerAddress string) *Validator {
	return &Validator{MinTimelockS: minTimelockS, MaxTimelockS: maxTimelockS, RelayerAddress: relayerAddress}
}

// Validate checks structural and semantic correctness of m: header fields,
// then whichever body variant the discriminator selects.
func (v *Validator) Validate(m *Message) *Error {
	if err := v.validateHeader(m); err != nil {
		return err
	}

	switch m.Discriminator {
	case DiscriminatorSrcToDstEscrow:
		return v.validateSrcToDstEscrow(m.SrcToDstEscrow)
	case DiscriminatorDstToSrcEscrow:
		return v.validateDstToSrcEscrow(m.DstToSrcEscrow)
	case DiscriminatorFulfillment:
		return v.validateFulfillment(m.Fulfillment)
	case DiscriminatorError:
		return v.validateErrorBody(m.ErrorBody)
	default:
		return New(CodeInvalidFormat, "unknown discriminator")
	}
}

func (v *Validator) validateHeader(m *Message) *Error {
	if m.Discriminator == "" {
		return New(CodeInvalidFormat, "discriminator is required")
	}
	if m.ProtocolVersion != ProtocolVersion {
		return Newf(CodeInvalidFormat, "unsupported protocol version %d", m.ProtocolVersion)
	}
	if m.MessageID == "" {
		return New(CodeInvalidFormat, "messageId is required")
	}
	if m.Signature == "" {
		return New(CodeInvalidFormat, "signature is required")
	}
	if v.RelayerAddress != "" {
		ok, err := VerifyRelayerSignature(m, m.Signature, v.RelayerAddress)
		if err != nil {
			return Newf(CodeInvalidSignature, "verify relayer signature: %v", err)
		}
		if !ok {
			return New(CodeUnauthorizedRelayer, "message was not signed by the configured relayer key")
		}
	}

	now := time.Now()
	ts := time.UnixMilli(m.Timestamp)
	if now.Sub(ts) > maxMessageAge {
		return New(CodeExpiredTimelock, "message timestamp too old")
	}
	if ts.Sub(now) > maxClockSkew {
		return New(CodeInvalidFormat, "message timestamp too far in the future")
	}
	return nil
}

func (v *Validator) validateSrcToDstEscrow(b *SrcToDstEscrowBody) *Error {
	if b == nil {
		return New(CodeInvalidFormat, "srcToDstEscrow body missing")
	}
	if b.OrderID == "" || b.SourceTxHash == "" || b.SenderAddress == "" || b.DestinationRecipient == "" {
		return New(CodeInvalidFormat, "srcToDstEscrow is missing required fields")
	}
	if err := validateHashlock(b.Hashlock); err != nil {
		return err
	}
	if err := validateAmount(b.Amount); err != nil {
		return err
	}
	return v.validateTimelock(b.Timelock)
}

func (v *Validator) validateDstToSrcEscrow(b *DstToSrcEscrowBody) *Error {
	if b == nil {
		return New(CodeInvalidFormat, "dstToSrcEscrow body missing")
	}
	if b.OrderID == "" || b.DestinationTxHash == "" || b.RecipientAddress == "" || b.SourceRecipient == "" {
		return New(CodeInvalidFormat, "dstToSrcEscrow is missing required fields")
	}
	if err := validateHashlock(b.Hashlock); err != nil {
		return err
	}
	if err := validateAmount(b.Amount); err != nil {
		return err
	}
	return v.validateTimelock(b.Timelock)
}

func (v *Validator) validateFulfillment(b *FulfillmentBody) *Error {
	if b == nil {
		return New(CodeInvalidFormat, "fulfillment body missing")
	}
	if b.OrderID == "" || b.CounterpartTxHash == "" {
		return New(CodeInvalidFormat, "fulfillment is missing required fields")
	}
	if !isHex(b.RevealedSecret, hexDigestLength) {
		return New(CodeInvalidSecret, "revealedSecret must be 64 hex characters")
	}
	return nil
}

func (v *Validator) validateErrorBody(b *ErrorBody) *Error {
	if b == nil {
		return New(CodeInvalidFormat, "error body missing")
	}
	if b.OriginalMessageID == "" || b.ErrorCode == "" {
		return New(CodeInvalidFormat, "error body is missing required fields")
	}
	return nil
}

func (v *Validator) validateTimelock(timelockS int64) *Error {
	now := time.Now().Unix()
	if timelockS < now+v.MinTimelockS || timelockS > now+v.MaxTimelockS {
		return New(CodeExpiredTimelock, "timelock outside allowed bounds")
	}
	return nil
}

func validateHashlock(h string) *Error {
	if !isHex(h, hexDigestLength) {
		return New(CodeInvalidFormat, "hashlock must be 64 lower-case hex characters")
	}
	return nil
}

func isHex(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

func validateAmount(amount string) *Error {
	if amount == "" {
		return New(CodeInvalidFormat, "amount is required")
	}
	n, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return New(CodeInvalidFormat, "amount must be a decimal integer string")
	}
	if n.Sign() <= 0 {
		return New(CodeInvalidFormat, "amount must be positive")
	}
	return nil
}
