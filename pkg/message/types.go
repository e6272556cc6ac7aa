package message

// Discriminator tags which of the four wire variants a Message carries.
type Discriminator string

const (
	DiscriminatorSrcToDstEscrow Discriminator = "SRC_TO_DST_ESCROW"
	DiscriminatorDstToSrcEscrow Discriminator = "DST_TO_SRC_ESCROW"
	DiscriminatorFulfillment    Discriminator = "FULFILLMENT"
	DiscriminatorError          Discriminator = "ERROR"
)

const ProtocolVersion = 1

// Header is common to every variant.
type Header struct {
	Discriminator Discriminator `json:"discriminator"`
	ProtocolVersion int         `json:"protocolVersion"`
	MessageID     string        `json:"messageId"`
	Timestamp     int64         `json:"timestamp"` // unix millis
	Nonce         uint64        `json:"nonce"`
	Signature     string        `json:"signature"`
}

// SrcToDstEscrowBody carries a source-chain escrow observation to be
// relayed to the destination chain.
type SrcToDstEscrowBody struct {
	OrderID              string `json:"orderId"`
	SourceTxHash         string `json:"sourceTxHash"`
	SourceBlockNumber    uint64 `json:"sourceBlockNumber"`
	SourceLogIndex       uint32 `json:"sourceLogIndex"`
	SenderAddress        string `json:"senderAddress"`
	DestinationRecipient string `json:"destinationRecipient"`
	Amount               string `json:"amount"`
	SourceToken          string `json:"sourceToken,omitempty"`
	DestinationTokenMaster string `json:"destinationTokenMaster,omitempty"`
	Hashlock             string `json:"hashlock"`
	Timelock             int64  `json:"timelock"` // unix seconds
	InclusionProof       string `json:"inclusionProof,omitempty"`
}

// DstToSrcEscrowBody mirrors SrcToDstEscrowBody for the opposite direction.
type DstToSrcEscrowBody struct {
	OrderID               string `json:"orderId"`
	DestinationTxHash     string `json:"destinationTxHash"`
	DestinationLogicalTime int64 `json:"destinationLogicalTime"`
	DestinationBlockSeqno uint64 `json:"destinationBlockSeqno"`
	RecipientAddress      string `json:"recipientAddress"`
	SourceRecipient       string `json:"sourceRecipient"`
	Amount                string `json:"amount"`
	DestinationToken      string `json:"destinationToken,omitempty"`
	SourceTokenMaster     string `json:"sourceTokenMaster,omitempty"`
	Hashlock              string `json:"hashlock"`
	Timelock              int64  `json:"timelock"`
	ProofBundle           string `json:"proofBundle,omitempty"`
}

// FulfillmentBody carries a revealed secret proving either leg of an HTLC
// was redeemed, regardless of direction.
type FulfillmentBody struct {
	OrderID           string `json:"orderId"`
	RevealedSecret    string `json:"revealedSecret"`
	CounterpartTxHash string `json:"counterpartTxHash"`
	RecipientChain    string `json:"recipientChain"`
	InclusionProof    string `json:"inclusionProof,omitempty"`
}

// ErrorBody carries a reported failure for a previously sent message.
type ErrorBody struct {
	OriginalMessageID string `json:"originalMessageId"`
	ErrorCode         string `json:"errorCode"`
	Detail            string `json:"detail,omitempty"`
}

// Message is the tagged union of the four wire variants. Exactly one of
// the body fields is populated, selected by Header.Discriminator.
type Message struct {
	Header

	SrcToDstEscrow *SrcToDstEscrowBody `json:"srcToDstEscrow,omitempty"`
	DstToSrcEscrow *DstToSrcEscrowBody `json:"dstToSrcEscrow,omitempty"`
	Fulfillment    *FulfillmentBody    `json:"fulfillment,omitempty"`
	ErrorBody      *ErrorBody          `json:"error,omitempty"`
}

// OrderID returns the order this message concerns, or "" for Error
// variants (which reference a message-id, not an order-id).
func (m *Message) OrderID() string {
	switch m.Discriminator {
	case DiscriminatorSrcToDstEscrow:
		if m.SrcToDstEscrow != nil {
			return m.SrcToDstEscrow.OrderID
		}
	case DiscriminatorDstToSrcEscrow:
		if m.DstToSrcEscrow != nil {
			return m.DstToSrcEscrow.OrderID
		}
	case DiscriminatorFulfillment:
		if m.Fulfillment != nil {
			return m.Fulfillment.OrderID
		}
	}
	return ""
}
