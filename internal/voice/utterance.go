package voice

import "strings"

// pendingUtterance accumulates recognition fragments for the turn being
// spoken. Only final fragments count toward the submitted text; the latest
// interim fragment is kept for display. Cleared on send or cancel.
type pendingUtterance struct {
	finals  []string
	interim string
}

func (p *pendingUtterance) push(f Fragment) {
	if f.Final {
		if f.Text != "" {
			p.finals = append(p.finals, f.Text)
		}
		p.interim = ""
		return
	}
	p.interim = f.Text
}

// text returns the committed utterance: final fragments concatenated in
// arrival order, trimmed of surrounding whitespace.
func (p *pendingUtterance) text() string {
	return strings.TrimSpace(strings.Join(p.finals, ""))
}

// display returns what the user should see while still talking: the
// committed text when present, the live interim fragment otherwise.
func (p *pendingUtterance) display() string {
	if t := p.text(); t != "" {
		return t
	}
	return strings.TrimSpace(p.interim)
}

func (p *pendingUtterance) empty() bool {
	return len(p.finals) == 0 && strings.TrimSpace(p.interim) == ""
}

func (p *pendingUtterance) reset() {
	p.finals = nil
	p.interim = ""
}
