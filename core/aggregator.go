package core

// Aggregate maps keyed sub-results back to the batch items by position. A key
// with no reply, or with an empty error list, counts as success.
func Aggregate(batch Batch, results map[string][]UserError) []OperationResult {
	out := make([]OperationResult, 0, len(batch.Changes))
	for i, change := range batch.Changes {
		errs := results[SubOperationKey(i)]
		result := OperationResult{ItemID: change.ItemID, OK: len(errs) == 0}
		if len(errs) > 0 {
			result.Errors = append([]UserError(nil), errs...)
		}
		out = append(out, result)
	}
	return out
}

// FailBatch marks every item in the batch as failed with the same message.
func FailBatch(batch Batch, message string) []OperationResult {
	out := make([]OperationResult, 0, len(batch.Changes))
	for _, change := range batch.Changes {
		out = append(out, OperationResult{
			ItemID: change.ItemID,
			OK:     false,
			Errors: []UserError{{Message: message}},
		})
	}
	return out
}

// Totals keeps running counts across the batches of one run.
type Totals struct {
	Success   int
	Failed    int
	Processed int
}

func (t *Totals) Add(results []OperationResult) {
	if t == nil {
		return
	}
	for _, result := range results {
		t.Processed++
		if result.OK {
			t.Success++
			continue
		}
		t.Failed++
	}
}
