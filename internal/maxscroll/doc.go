// Package maxscroll measures how far a visitor scrolls down each page and
// reports meaningful increases as "Max Scroll" events.
//
// A Tracker listens for scroll signals through a debouncer, so only the last
// signal of a burst is measured. Each measurement is compared against the
// highest percentage stored for the current page key; an event is sent only
// when the increase reaches the configured threshold or the page is scrolled
// to the bottom. Stored maxima survive navigation within a session and are
// wiped when the session expires. Increases below the threshold are dropped,
// not accumulated: the baseline only advances when an event is sent.
package maxscroll
