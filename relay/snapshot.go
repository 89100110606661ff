package relay

import "slices"

// Snapshot is the last known state of a collaboratively edited object.
type Snapshot struct {
	Content string
	Title   string
	Rows    []string
}

// Snapshots caches one Snapshot per object id for the lifetime of the
// process. Every write overwrites; there is no versioning or merge.
type Snapshots struct {
	docs map[string]*Snapshot
}

func NewSnapshots() *Snapshots {
	return &Snapshots{docs: make(map[string]*Snapshot)}
}

// Get returns a copy of the snapshot for id, or an empty one if id was never
// written.
func (s *Snapshots) Get(id string) Snapshot {
	doc, ok := s.docs[id]
	if !ok {
		return Snapshot{}
	}
	out := *doc
	out.Rows = append([]string(nil), doc.Rows...)
	return out
}

func (s *Snapshots) Content(id string) string {
	if doc, ok := s.docs[id]; ok {
		return doc.Content
	}
	return ""
}

func (s *Snapshots) SetContent(id, content string) {
	s.doc(id).Content = content
}

func (s *Snapshots) Title(id string) string {
	if doc, ok := s.docs[id]; ok {
		return doc.Title
	}
	return ""
}

func (s *Snapshots) SetTitle(id, title string) {
	s.doc(id).Title = title
}

// Row returns the value at idx, or "" when idx is out of range.
func (s *Snapshots) Row(id string, idx int) string {
	doc, ok := s.docs[id]
	if !ok || idx < 0 || idx >= len(doc.Rows) {
		return ""
	}
	return doc.Rows[idx]
}

// Rows returns a copy of the row array for id.
func (s *Snapshots) Rows(id string) []string {
	doc, ok := s.docs[id]
	if !ok {
		return nil
	}
	return append([]string(nil), doc.Rows...)
}

// MaxRows bounds the row index SetRow will cache.
const MaxRows = 10000

// SetRow overwrites the row at idx. Writing past the end extends the array
// and pads any gap with empty strings. Negative indexes and indexes at or
// beyond MaxRows are ignored; the return value reports whether the row was
// cached.
func (s *Snapshots) SetRow(id string, idx int, value string) bool {
	if idx < 0 || idx >= MaxRows {
		return false
	}
	doc := s.doc(id)
	if n := idx + 1 - len(doc.Rows); n > 0 {
		doc.Rows = append(slices.Grow(doc.Rows, n), make([]string, n)...)
	}
	doc.Rows[idx] = value
	return true
}

// AppendRow appends value and returns its index, which is always the row
// count before the append.
func (s *Snapshots) AppendRow(id, value string) int {
	doc := s.doc(id)
	doc.Rows = append(doc.Rows, value)
	return len(doc.Rows) - 1
}

// DeleteRow removes the row at idx, shifting later rows down. Out of range
// indexes are a no-op; the return value reports whether a row was removed.
func (s *Snapshots) DeleteRow(id string, idx int) bool {
	doc, ok := s.docs[id]
	if !ok || idx < 0 || idx >= len(doc.Rows) {
		return false
	}
	doc.Rows = append(doc.Rows[:idx], doc.Rows[idx+1:]...)
	return true
}

// Len reports how many objects have a snapshot.
func (s *Snapshots) Len() int {
	return len(s.docs)
}

func (s *Snapshots) doc(id string) *Snapshot {
	doc, ok := s.docs[id]
	if !ok {
		doc = &Snapshot{}
		s.docs[id] = doc
	}
	return doc
}
