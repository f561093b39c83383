// Package page models the browser window a tracker runs in: its scroll
// geometry and the scroll listeners attached to it.
package page

import (
	"math"
	"sync"
)

// Geometry is a snapshot of the vertical scroll state in CSS pixels.
type Geometry struct {
	ScrollTop      float64 `json:"scroll_top"`
	ViewportHeight float64 `json:"viewport_height"`
	DocumentHeight float64 `json:"document_height"`
}

// Listener receives scroll notifications. Listeners are compared by
// identity, so pointer receivers make stable registrations.
type Listener interface {
	OnScroll()
}

// Document is an in-memory window fed by recorded or streamed browser
// events. It is safe for concurrent use; listeners run on the goroutine that
// scrolled, after the document lock is released.
type Document struct {
	mu        sync.Mutex
	url       string
	geometry  Geometry
	listeners []Listener
}

// NewDocument returns a Document at the top of url.
func NewDocument(url string, viewportHeight, documentHeight float64) *Document {
	return &Document{
		url: url,
		geometry: Geometry{
			ViewportHeight: sanitize(viewportHeight),
			DocumentHeight: sanitize(documentHeight),
		},
	}
}

// CanListen reports that the document supports scroll listeners.
func (d *Document) CanListen() bool {
	return d != nil
}

// AddScrollListener attaches l. Attaching an attached listener is a no-op.
func (d *Document) AddScrollListener(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.listeners {
		if existing == l {
			return
		}
	}
	d.listeners = append(d.listeners, l)
}

// RemoveScrollListener detaches l if attached.
func (d *Document) RemoveScrollListener(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.listeners {
		if existing == l {
			d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
			return
		}
	}
}

// ListenerCount returns the number of attached listeners.
func (d *Document) ListenerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}

// Geometry returns the current scroll geometry.
func (d *Document) Geometry() Geometry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.geometry
}

// URL returns the document URL.
func (d *Document) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

// ScrollTo sets the scroll offset and dispatches a scroll signal to every
// listener.
func (d *Document) ScrollTo(y float64) {
	d.mu.Lock()
	d.geometry.ScrollTop = sanitize(y)
	listeners := append([]Listener(nil), d.listeners...)
	d.mu.Unlock()

	for _, l := range listeners {
		l.OnScroll()
	}
}

// Resize updates viewport and document heights without dispatching. Zero
// values leave the corresponding height unchanged.
func (d *Document) Resize(viewportHeight, documentHeight float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if viewportHeight > 0 {
		d.geometry.ViewportHeight = sanitize(viewportHeight)
	}
	if documentHeight > 0 {
		d.geometry.DocumentHeight = sanitize(documentHeight)
	}
}

// Navigate loads url at the top of the page. Listeners stay attached, as
// they do for single page applications that swap content in place.
func (d *Document) Navigate(url string, viewportHeight, documentHeight float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url = url
	d.geometry = Geometry{
		ViewportHeight: sanitize(viewportHeight),
		DocumentHeight: sanitize(documentHeight),
	}
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
