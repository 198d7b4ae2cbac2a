package target

import (
	"errors"
	"strings"
)

// Kind names one of the package workflows a target knows how to run.
type Kind int

const (
	Install Kind = iota
	Uninstall
	Prepare
	Downgrade
	Update
)

func (k Kind) String() string {
	switch k {
	case Install:
		return "install"
	case Uninstall:
		return "uninstall"
	case Prepare:
		return "prepare"
	case Downgrade:
		return "downgrade"
	case Update:
		return "update"
	}
	return "unknown"
}

// Workflow holds the command templates of one kind for one package
// manager family. Templates a family does not use are empty.
type Workflow struct {
	Kind          Kind
	Command       Template
	InstalledOnly Template
	Reboot        Template
	StartCommand  Template
	ListCommand   Template
	InitSnapshot  Template
	Validate      Validator
}

// PrepareOptions tunes the prepare workflow.
type PrepareOptions struct {
	Force   bool
	Testing bool
}

const (
	rebootCommand = "systemctl reboot"
	// 列出仓库中每个包的可用版本, 输出 "name = version"
	listVersions = `zypper -n se -s --match-exact -t package $packages | grep -v "(System" | grep ^[iv] | sed "s, ,,g" | awk -F "|" '{ print $2" = "$4 }'`
)

func zypperFlags(o PrepareOptions) string {
	flags := []string{"-y", "-l"}
	if !o.Testing {
		flags = append(flags, "--oldpackage")
	}
	if o.Force {
		flags = append(flags, "--force-resolution")
	}
	return strings.Join(flags, " ")
}

func zypperWorkflow(kind Kind, o PrepareOptions) Workflow {
	w := Workflow{Kind: kind, Validate: zypperCheck(kind)}
	switch kind {
	case Install:
		w.Command = "zypper -n in -y -l $packages"
	case Uninstall:
		w.Command = "zypper -n rm $packages"
	case Prepare:
		flags := zypperFlags(o)
		w.Command = Template("zypper -n in " + flags + " $package")
		w.InstalledOnly = Template("if rpm -q $package >/dev/null 2>&1; then zypper -n in " + flags + " $package; fi")
	case Downgrade:
		w.ListCommand = listVersions
		w.Command = "zypper -n in -y -l --oldpackage --force-resolution $package=$version"
	case Update:
		w.Command = "zypper -n ref -r issue$repa && zypper -n up -y -l -r issue$repa $packages"
	}
	return w
}

func transactionalWorkflow(kind Kind, o PrepareOptions) Workflow {
	w := Workflow{Kind: kind, Reboot: rebootCommand, Validate: transactionalCheck(kind)}
	switch kind {
	case Install:
		w.Command = "transactional-update -n -c pkg install -l $packages"
	case Uninstall:
		w.Command = "transactional-update -n -c pkg remove $packages"
	case Prepare:
		flags := zypperFlags(o)
		w.StartCommand = "transactional-update -n -c run /bin/true"
		w.Command = Template("transactional-update -n -c run zypper -n in " + flags + " $package")
		w.InstalledOnly = Template("if rpm -q $package >/dev/null 2>&1; then transactional-update -n -c run zypper -n in " + flags + " $package; fi")
	case Downgrade:
		w.InitSnapshot = "transactional-update -n run /bin/true"
		w.ListCommand = listVersions
		w.Command = "transactional-update -n -c run zypper -n in -y -l --oldpackage --force-resolution $package=$version"
	case Update:
		w.Command = `transactional-update -n -c run sh -c "zypper -n ref -r issue$repa && zypper -n up -y -l -r issue$repa $packages"`
	}
	return w
}

// WorkflowFor returns the templates kind uses on a host of the given
// family.
func WorkflowFor(kind Kind, transactional bool, o PrepareOptions) Workflow {
	if transactional {
		return transactionalWorkflow(kind, o)
	}
	return zypperWorkflow(kind, o)
}

// RepoOp stages or removes the testing repository of an update.
type RepoOp string

const (
	RepoAdd    RepoOp = "add"
	RepoRemove RepoOp = "remove"
)

var ErrUnsupportedRepoOp = errors.New("unsupported repository operation")
