package stream

import "strings"

const urnSeparator = "/"

// Name identifies a log or a consumer group.
// Names are comparable and safe to use as map keys.
type Name struct {
	namespace string
	name      string
}

// NameOf builds a name from a namespace and a local name.
func NameOf(namespace, name string) Name {
	return Name{namespace: namespace, name: name}
}

// NameOfURN parses "namespace/name". A urn without separator has no namespace.
func NameOfURN(urn string) Name {
	ns, n, ok := strings.Cut(urn, urnSeparator)
	if !ok {
		return Name{name: urn}
	}
	return Name{namespace: ns, name: n}
}

func (n Name) Namespace() string { return n.namespace }

func (n Name) Local() string { return n.name }

// URN returns the "namespace/name" form, or just the name without namespace.
func (n Name) URN() string {
	if n.namespace == "" {
		return n.name
	}
	return n.namespace + urnSeparator + n.name
}

// ID returns a form usable where '/' is not allowed.
func (n Name) ID() string {
	if n.namespace == "" {
		return n.name
	}
	return n.namespace + "-" + n.name
}

func (n Name) IsZero() bool { return n.namespace == "" && n.name == "" }

func (n Name) String() string { return n.URN() }
