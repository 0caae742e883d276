package core

// UnitKind distinguishes host-architecture compilation (build scripts,
// for_host targets) from target-architecture compilation (spec §3, §4.4).
type UnitKind int

const (
	Host UnitKind = iota
	TargetArch
)

func (k UnitKind) String() string {
	if k == Host {
		return "host"
	}
	return "target"
}

// Unit is the scheduling atom: (package, target, profile, host/target)
// (spec §3). Two units are equal iff all four match.
type Unit struct {
	Package  PackageID
	Target   Target
	Profile  Profile
	Kind     UnitKind
}

// Key returns a value suitable for use as a map key / graph node identity.
func (u Unit) Key() string {
	return u.Package.Key() + "\x00" + u.Target.Kind.String() + "\x00" + u.Target.Name + "\x00" + u.Profile.Name + "\x00" + u.Kind.String()
}

func (u Unit) Equal(o Unit) bool { return u.Key() == o.Key() }

// BuildScript reports whether this unit compiles a custom-build target.
func (u Unit) BuildScript() bool { return u.Target.IsCustomBuild() }
