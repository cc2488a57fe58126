package redirect

import "sync"

// StaticNavigator is a Navigator for hosts without a real page, such as the CLI
// or tests. It remembers the last forced navigation.
type StaticNavigator struct {
	lock     sync.Mutex
	location string
	history  []string
	onNav    func(target string)
}

// NewStaticNavigator starts at location. onNavigate, if not nil, is called on every forced navigation.
func NewStaticNavigator(location string, onNavigate func(target string)) *StaticNavigator {
	return &StaticNavigator{location: location, onNav: onNavigate}
}

func (n *StaticNavigator) Location() string {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.location
}

func (n *StaticNavigator) Navigate(target string) {
	n.lock.Lock()
	n.location = target
	n.history = append(n.history, target)
	onNav := n.onNav
	n.lock.Unlock()

	if onNav != nil {
		onNav(target)
	}
}

// SetLocation moves the navigator without recording a forced navigation.
func (n *StaticNavigator) SetLocation(location string) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.location = location
}

// Navigations returns every forced navigation target, oldest first.
func (n *StaticNavigator) Navigations() []string {
	n.lock.Lock()
	defer n.lock.Unlock()
	return append([]string(nil), n.history...)
}
