package cache

// Keyer generates cache keys.
type Keyer interface {
	// AvatarKey is the key for a user's raw avatar bytes.
	AvatarKey(username string) string
	// CardKey is the key for a rendered card.
	CardKey(summaryHash string, opts CardKeyOpts) string
}

// CardKeyOpts are the render inputs, besides the summary, that change a card.
type CardKeyOpts struct {
	AvatarHash string `json:"avatar,omitempty"`
	Timestamp  string `json:"ts,omitempty"`
	Variant    string `json:"variant,omitempty"`
	Geometry   string `json:"geom,omitempty"`
	Font       string `json:"font,omitempty"`
}

// DefaultKeyer produces unprefixed keys.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the default keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// AvatarKey returns "avatar:{username}".
func (DefaultKeyer) AvatarKey(username string) string {
	return "avatar:" + username
}

// CardKey hashes the summary hash together with opts.
func (DefaultKeyer) CardKey(summaryHash string, opts CardKeyOpts) string {
	return hashKey("card", summaryHash, opts)
}

// ScopedKeyer wraps a Keyer with a prefix, so that several deployments can
// share one Redis or Mongo backend without colliding.
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// AvatarKey generates a prefixed avatar key.
func (k *ScopedKeyer) AvatarKey(username string) string {
	return k.prefix + k.inner.AvatarKey(username)
}

// CardKey generates a prefixed card key.
func (k *ScopedKeyer) CardKey(summaryHash string, opts CardKeyOpts) string {
	return k.prefix + k.inner.CardKey(summaryHash, opts)
}
