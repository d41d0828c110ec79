package ledger

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/persistorai/ledger/internal/models"
)

func sampleInput() HashInput {
	return HashInput{
		Seq:            10,
		OrganizationID: "org-a",
		ActorID:        "user-1",
		EventName:      "job.created",
		TargetType:     "job",
		TargetID:       "job-1",
		Metadata:       map[string]any{"title": "Trench", "count": 3},
		CreatedAt:      time.Date(2026, 3, 1, 8, 30, 0, 123456789, time.UTC),
	}
}

// Golden digests pin the canonical form so any other process or language
// computing the same bytes gets the same hash.
const (
	goldenFirst  = "fe18ec2eb51187add329543b5bbf5f9ea8a6cd4947e7b8189fc804502de88ab2"
	goldenSecond = "0b91c642567cd5cdd605be631ea663b61f15834a4fa29040226f83026b967e80"
)

func TestComputeHash_Golden(t *testing.T) {
	first, err := ComputeHash(nil, sampleInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first != goldenFirst {
		t.Fatalf("first hash = %s, want %s", first, goldenFirst)
	}

	second, err := ComputeHash(&first, HashInput{
		Seq:            11,
		OrganizationID: "org-a",
		ActorID:        "user-2",
		EventName:      "control.completed",
		TargetType:     "control",
		TargetID:       "ctl-1",
		CreatedAt:      time.Date(2026, 3, 1, 8, 31, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if second != goldenSecond {
		t.Fatalf("second hash = %s, want %s", second, goldenSecond)
	}
}

func TestComputeHash_Pure(t *testing.T) {
	in := sampleInput()

	want, err := ComputeHash(nil, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 50; i++ {
		got, err := ComputeHash(nil, sampleInput())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got != want {
			t.Fatalf("iteration %d: hash changed from %s to %s", i, want, got)
		}
	}
}

func TestComputeHash_StorageRoundTripStable(t *testing.T) {
	in := sampleInput()

	want, err := ComputeHash(nil, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// What a JSONB round trip hands back: decoded numbers and a
	// timestamp in another zone with the nanoseconds already dropped.
	in.Metadata = map[string]any{"count": json.Number("3.0"), "title": "Trench"}
	in.CreatedAt = time.Date(2026, 3, 1, 9, 30, 0, 123456000, time.FixedZone("CET", 3600))

	got, err := ComputeHash(nil, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got != want {
		t.Fatalf("round-tripped hash = %s, want %s", got, want)
	}
}

func TestComputeHash_EveryFieldMatters(t *testing.T) {
	base, err := ComputeHash(nil, sampleInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prev := "abc"
	mutations := map[string]func(in *HashInput) *string{
		"seq":          func(in *HashInput) *string { in.Seq++; return nil },
		"organization": func(in *HashInput) *string { in.OrganizationID = "org-b"; return nil },
		"actor":        func(in *HashInput) *string { in.ActorID = "user-9"; return nil },
		"event":        func(in *HashInput) *string { in.EventName = "job.deleted"; return nil },
		"target_type":  func(in *HashInput) *string { in.TargetType = "control"; return nil },
		"target_id":    func(in *HashInput) *string { in.TargetID = "job-2"; return nil },
		"metadata":     func(in *HashInput) *string { in.Metadata["count"] = 4; return nil },
		"created_at":   func(in *HashInput) *string { in.CreatedAt = in.CreatedAt.Add(time.Microsecond); return nil },
		"prev_hash":    func(*HashInput) *string { return &prev },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			in := sampleInput()
			p := mutate(&in)

			got, err := ComputeHash(p, in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got == base {
				t.Fatalf("changing %s did not change the hash", name)
			}
		})
	}
}

func TestComputeHash_FieldBoundariesAreUnambiguous(t *testing.T) {
	a := sampleInput()
	a.TargetType, a.TargetID = "job|x", "1"

	b := sampleInput()
	b.TargetType, b.TargetID = "job", "x|1"

	ha, err := ComputeHash(nil, a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hb, err := ComputeHash(nil, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ha == hb {
		t.Fatal("shifting a delimiter between fields produced the same hash")
	}
}

func TestComputeHash_UnencodableMetadata(t *testing.T) {
	in := sampleInput()
	in.Metadata = map[string]any{"fn": func() {}}

	_, err := ComputeHash(nil, in)
	if !errors.Is(err, models.ErrHashComputation) {
		t.Fatalf("expected ErrHashComputation, got %v", err)
	}
}

func TestNormalizeMetadata(t *testing.T) {
	type payload struct {
		B string `json:"b"`
		A int    `json:"a"`
	}

	got, err := NormalizeMetadata(map[string]any{
		"nested": payload{B: "x", A: 1},
		"big":    1e21,
		"frac":   json.Number("1.50"),
		"list":   []int{1, 2},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"big":1000000000000000000000,"frac":1.5,"list":[1,2],"nested":{"a":1,"b":"x"}}`
	if string(raw) != want {
		t.Fatalf("normalized = %s, want %s", raw, want)
	}

	empty, err := NormalizeMetadata(nil)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("nil metadata should normalize to an empty map, got %v, %v", empty, err)
	}
}

func TestRootHasher_Golden(t *testing.T) {
	h := newRootHasher("")
	_ = h.add(10, goldenFirst)
	_ = h.add(11, goldenSecond)

	if h.count != 2 {
		t.Fatalf("count = %d, want 2", h.count)
	}

	const want = "cfa12625e3799dd1b15f6d549050e6d96398bd239e4c463c9ff889edbfb655ee"
	if got := h.sum(); got != want {
		t.Fatalf("root hash = %s, want %s", got, want)
	}
}
