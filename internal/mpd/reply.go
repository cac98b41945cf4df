package mpd

import (
	"strconv"
	"strings"
	"time"
)

// Pair is a single "key: value" line from a reply. Order and duplicate
// keys are preserved; MPD uses both (queue listings repeat keys, one
// group per track).
type Pair struct {
	Key   string
	Value string
}

// Reply is a decoded successful response: the key/value lines that
// preceded the OK terminator, plus any binary payload ("binary: N"
// chunks from albumart/readpicture).
type Reply struct {
	Pairs  []Pair
	Binary []byte
}

// Get returns the value of the last occurrence of key. Last-wins
// matches MPD semantics for non-repeating fields.
func (r Reply) Get(key string) (string, bool) {
	for i := len(r.Pairs) - 1; i >= 0; i-- {
		if r.Pairs[i].Key == key {
			return r.Pairs[i].Value, true
		}
	}
	return "", false
}

// GetInt parses the field as a base-10 integer.
func (r Reply) GetInt(key string) (int, bool) {
	s, ok := r.Get(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// GetSeconds parses a fractional-seconds field (elapsed, duration).
func (r Reply) GetSeconds(key string) (time.Duration, bool) {
	s, ok := r.Get(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(f * float64(time.Second)), true
}

// GetBool parses MPD's 0/1 flags.
func (r Reply) GetBool(key string) (bool, bool) {
	s, ok := r.Get(key)
	if !ok {
		return false, false
	}
	return s == "1", true
}

// Values returns every value recorded for key, in order.
func (r Reply) Values(key string) []string {
	var out []string
	for _, p := range r.Pairs {
		if p.Key == key {
			out = append(out, p.Value)
		}
	}
	return out
}

// Records splits the reply into groups, each starting at a line whose
// key equals delim. Queue listings yield one record per track with
// delim "file". Lines before the first delimiter are dropped.
func (r Reply) Records(delim string) []Reply {
	var records []Reply
	var cur *Reply
	for _, p := range r.Pairs {
		if p.Key == delim {
			records = append(records, Reply{})
			cur = &records[len(records)-1]
		}
		if cur != nil {
			cur.Pairs = append(cur.Pairs, p)
		}
	}
	return records
}

// splitLine splits a protocol line on the first ": " separator. Values
// may themselves contain colons (URIs), so only the first counts.
func splitLine(line string) (Pair, bool) {
	idx := strings.Index(line, ": ")
	if idx <= 0 {
		return Pair{}, false
	}
	return Pair{Key: line[:idx], Value: line[idx+2:]}, true
}
