package ledger

import (
	"encoding/json"
	"fmt"

	"wallet/internal/core"
)

// record is the stored shape of one transaction. Pointers distinguish a
// missing field from an empty one. The amount is looked up separately since
// a present null must not read as missing.
type record struct {
	Type        *string `json:"type"`
	Date        *string `json:"date"`
	Description *string `json:"description"`
}

// wireRecord is what gets written back. IDs stay in memory.
type wireRecord struct {
	Type        core.TransactionType `json:"type"`
	Date        string               `json:"date"`
	Description string               `json:"description"`
	Amount      core.Amount          `json:"amount"`
}

// Decode parses a stored slot value. A JSON null decodes to an empty list.
// Extra fields are ignored. The returned transactions carry no IDs.
func Decode(value string) ([]core.Transaction, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(value), &elems); err != nil {
		return nil, fmt.Errorf("%w: not a JSON array: %v", core.ErrMalformedStorage, err)
	}

	out := make([]core.Transaction, 0, len(elems))
	for i, elem := range elems {
		var rec record
		if err := json.Unmarshal(elem, &rec); err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", core.ErrMalformedStorage, i, err)
		}
		switch {
		case rec.Type == nil:
			return nil, fmt.Errorf("%w: element %d: missing type", core.ErrMalformedStorage, i)
		case rec.Date == nil:
			return nil, fmt.Errorf("%w: element %d: missing date", core.ErrMalformedStorage, i)
		case rec.Description == nil:
			return nil, fmt.Errorf("%w: element %d: missing description", core.ErrMalformedStorage, i)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(elem, &fields); err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", core.ErrMalformedStorage, i, err)
		}
		amount, ok := fields["amount"]
		if !ok {
			return nil, fmt.Errorf("%w: element %d: missing amount", core.ErrMalformedStorage, i)
		}
		typ := core.TransactionType(*rec.Type)
		if !typ.Valid() {
			return nil, fmt.Errorf("%w: element %d: unknown type %q", core.ErrMalformedStorage, i, *rec.Type)
		}
		out = append(out, core.Transaction{
			Type:        typ,
			Date:        *rec.Date,
			Description: *rec.Description,
			Amount:      core.AmountFromJSON(amount),
		})
	}
	return out, nil
}

// Encode serialises the full list in order. An empty list encodes as "[]".
func Encode(list []core.Transaction) (string, error) {
	recs := make([]wireRecord, len(list))
	for i, t := range list {
		recs[i] = wireRecord{
			Type:        t.Type,
			Date:        t.Date,
			Description: t.Description,
			Amount:      t.Amount,
		}
	}
	b, err := json.Marshal(recs)
	if err != nil {
		return "", fmt.Errorf("encode transactions: %w", err)
	}
	return string(b), nil
}
