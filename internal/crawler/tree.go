package crawler

import "time"

// NodeStatus marks how a leaf node was handled in the run that recorded it.
type NodeStatus string

const (
	// StatusWritten means the section was fetched and written in that run.
	StatusWritten NodeStatus = "written"
	// StatusSkipped means the section was already in the completion set.
	StatusSkipped NodeStatus = "skipped"
)

// Node is one entry of the hierarchy tree checkpoint.
type Node struct {
	Title         string        `json:"title"`
	URL           string        `json:"url"`
	Level         Level         `json:"level"`
	Range         *SectionRange `json:"sections,omitempty"`
	Complete      bool          `json:"complete"`
	SectionNumber string        `json:"section_number,omitempty"`
	Path          string        `json:"path,omitempty"`
	Status        NodeStatus    `json:"status,omitempty"`
	Children      []*Node       `json:"children,omitempty"`
}

// NewNode returns an incomplete node carrying the unit's metadata.
func NewNode(unit Unit) *Node {
	return &Node{
		Title: unit.Title,
		URL:   unit.URL,
		Level: unit.Level,
		Range: unit.Range,
	}
}

// Leaves returns every section below n, in tree order.
func (n *Node) Leaves() []*Node {
	if n == nil {
		return nil
	}
	if n.Level == LevelSection {
		return []*Node{n}
	}
	var out []*Node
	for _, child := range n.Children {
		out = append(out, child.Leaves()...)
	}
	return out
}

// CountLevel counts the nodes at level l in n's subtree, n included.
func (n *Node) CountLevel(l Level) int {
	if n == nil {
		return 0
	}
	count := 0
	if n.Level == l {
		count++
	}
	for _, child := range n.Children {
		count += child.CountLevel(l)
	}
	return count
}

// TreeMetadata describes the run that produced a tree.
type TreeMetadata struct {
	ScrapeDate time.Time `json:"scrape_date"`
	SourceURL  string    `json:"source_url"`
	RunID      string    `json:"run_id,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Tree is the accumulated hierarchy, checkpointed after every subtitle.
type Tree struct {
	Metadata  TreeMetadata `json:"metadata"`
	Subtitles []*Node      `json:"subtitles"`
}

// NewTree starts an empty tree for a run.
func NewTree(sourceURL, runID string, now time.Time) *Tree {
	return &Tree{
		Metadata: TreeMetadata{
			ScrapeDate: now,
			SourceURL:  sourceURL,
			RunID:      runID,
			UpdatedAt:  now,
		},
		Subtitles: []*Node{},
	}
}

// Upsert replaces the subtitle with the same identity or appends it.
func (t *Tree) Upsert(node *Node) {
	id := LeafID(node.URL)
	for i, existing := range t.Subtitles {
		if LeafID(existing.URL) == id {
			t.Subtitles[i] = node
			return
		}
	}
	t.Subtitles = append(t.Subtitles, node)
}

// CompletedSubtitles returns the identities of subtitles recorded complete.
func (t *Tree) CompletedSubtitles() map[string]struct{} {
	done := make(map[string]struct{})
	if t == nil {
		return done
	}
	for _, node := range t.Subtitles {
		if node.Complete {
			done[LeafID(node.URL)] = struct{}{}
		}
	}
	return done
}

// SectionCount counts section leaves across the whole tree.
func (t *Tree) SectionCount() int {
	if t == nil {
		return 0
	}
	total := 0
	for _, node := range t.Subtitles {
		total += node.CountLevel(LevelSection)
	}
	return total
}
