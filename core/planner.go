package core

import (
	"fmt"
	"strconv"
)

// Plan splits changes into consecutive batches of at most chunkSize items.
// Order is preserved and every change lands in exactly one batch.
func Plan(changes []Change, chunkSize int) ([]Batch, error) {
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if len(changes) == 0 {
		return []Batch{}, nil
	}
	batches := make([]Batch, 0, (len(changes)+chunkSize-1)/chunkSize)
	for offset := 0; offset < len(changes); offset += chunkSize {
		end := offset + chunkSize
		if end > len(changes) {
			end = len(changes)
		}
		batches = append(batches, Batch{
			Index:   len(batches),
			Offset:  offset,
			Changes: changes[offset:end],
		})
	}
	return batches, nil
}

func SubOperationKey(index int) string {
	return SubOperationKeyPrefix + strconv.Itoa(index)
}

// BuildRequest turns a batch into one aggregate request with a sub-operation
// per change keyed by its position inside the batch.
func BuildRequest(batch Batch) (AggregateRequest, error) {
	req := AggregateRequest{
		BatchIndex: batch.Index,
		Operations: make([]SubOperation, 0, len(batch.Changes)),
	}
	for i, change := range batch.Changes {
		fields := change.Fields()
		if len(fields) == 0 {
			return AggregateRequest{}, fmt.Errorf("%w: item %q at position %d", ErrNoFields, change.ItemID, batch.Offset+i)
		}
		req.Operations = append(req.Operations, SubOperation{
			Key:    SubOperationKey(i),
			Index:  i,
			ItemID: change.ItemID,
			Fields: fields,
		})
	}
	return req, nil
}
