package review

// WorkItem is one unit of content submitted for review (usually a file).
type WorkItem struct {
	Content    string
	Identifier string
	Namespace  string
}

// Match is one context search hit returned by a context provider.
type Match struct {
	Score  float64
	Text   string
	Source string
}

// ProducerRequest is the input handed to an analysis producer.
type ProducerRequest struct {
	Content      string
	Context      string
	Identifier   string
	Instructions string
}
