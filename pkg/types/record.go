package types

// Record is one structured sensor reading. It is opaque to the pipeline:
// gpsd reports are kept exactly as decoded, whatever their class.
type Record map[string]any

// Class returns the gpsd report class ("TPV", "SKY", ...) or "" when the
// record carries none.
func (r Record) Class() string {
	c, _ := r["class"].(string)
	return c
}

// Batch is an ordered group of records captured atomically at one flush.
// A Batch is never modified after it is created.
type Batch []Record
