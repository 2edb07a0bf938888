// Package chat defines the canonical, platform-agnostic message model shared
// by every platform adapter, the retention store, and the HTTP layer. It also
// carries the pieces every adapter needs when normalizing raw protocol events:
// message truncation, the deterministic fallback user color, and the
// rich-text tokenizer that turns a message plus its positional annotations
// into a flat token stream for the overlay renderer.
package chat
