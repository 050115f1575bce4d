package display

import (
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/mtrqq/memsim/pkg/addrspace"
	"github.com/mtrqq/memsim/pkg/sched"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type blockRecord struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Size  int    `json:"size"`
	Owner string `json:"owner,omitempty"`
	Free  bool   `json:"free"`
}

type admitRecord struct {
	Event   string        `json:"event"`
	Tick    int           `json:"tick"`
	Process string        `json:"process"`
	Start   int           `json:"start"`
	Size    int           `json:"size"`
	Blocks  []blockRecord `json:"blocks"`
	Total   int           `json:"total"`
	Used    int           `json:"used"`
	Free    int           `json:"free"`
}

type evictRecord struct {
	Event    string `json:"event"`
	Tick     int    `json:"tick"`
	Victim   string `json:"victim"`
	Incoming string `json:"incoming"`
	Start    int    `json:"start"`
	Size     int    `json:"size"`
}

type completeRecord struct {
	Event       string   `json:"event"`
	Policy      string   `json:"policy"`
	Ticks       int      `json:"ticks"`
	Admissions  int      `json:"admissions"`
	Evictions   int      `json:"evictions"`
	PeakUsed    int      `json:"peak_used"`
	Free        int      `json:"free"`
	LargestFree int      `json:"largest_free"`
	Resident    []string `json:"resident"`
}

// JSON renders every event as one JSON object per line.
type JSON struct {
	enc *jsoniter.Encoder
	err error
}

func NewJSON(w io.Writer) *JSON {
	return &JSON{enc: json.NewEncoder(w)}
}

func (j *JSON) Err() error {
	return j.err
}

func (j *JSON) encode(v any) {
	if j.err != nil {
		return
	}

	j.err = j.enc.Encode(v)
}

func blockRecords(blocks []addrspace.Block) []blockRecord {
	records := make([]blockRecord, len(blocks))
	for i, block := range blocks {
		records[i] = blockRecord{
			Start: block.Start,
			End:   block.End(),
			Size:  block.Size,
			Owner: block.Owner.String(),
			Free:  block.Free,
		}
	}

	return records
}

func (j *JSON) OnAdmit(snapshot sched.Snapshot) {
	j.encode(admitRecord{
		Event:   "admit",
		Tick:    snapshot.Tick,
		Process: snapshot.Process.String(),
		Start:   snapshot.Block.Start,
		Size:    snapshot.Block.Size,
		Blocks:  blockRecords(snapshot.Blocks),
		Total:   snapshot.Total,
		Used:    snapshot.Used,
		Free:    snapshot.Free(),
	})
}

func (j *JSON) OnEvict(eviction sched.Eviction) {
	j.encode(evictRecord{
		Event:    "evict",
		Tick:     eviction.Tick,
		Victim:   eviction.Victim.String(),
		Incoming: eviction.Incoming.String(),
		Start:    eviction.Released.Start,
		Size:     eviction.Released.Size,
	})
}

func (j *JSON) OnComplete(stats sched.Stats) {
	resident := make([]string, len(stats.Resident))
	for i, id := range stats.Resident {
		resident[i] = id.String()
	}

	j.encode(completeRecord{
		Event:       "complete",
		Policy:      stats.Policy,
		Ticks:       stats.Ticks,
		Admissions:  stats.Admissions,
		Evictions:   stats.Evictions,
		PeakUsed:    stats.PeakUsed,
		Free:        stats.Free,
		LargestFree: stats.LargestFree,
		Resident:    resident,
	})
}
