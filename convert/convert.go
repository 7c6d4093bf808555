// Package convert turns an extension's XML source tree into a binary
// package and back.
//
// Both directions run inside a disposable host instance obtained from a
// Provisioner: the payload is loaded into a scratch extension and dumped in
// the other format. The instance is destroyed on every exit path and any
// command failure inside it is fatal.
package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	appext "github.com/masegraye/appext-go"
)

const (
	// DefaultExtensionName is the scratch extension name used inside the
	// temporary instance.
	DefaultExtensionName = "WTF1C"

	// RootFile must exist at the top of an XML source tree.
	RootFile = "Configuration.xml"
)

// ArgumentError reports an input of the wrong shape.
type ArgumentError struct {
	Path   string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: %q", e.Reason, e.Path)
}

// Is makes errors.Is(err, appext.ErrInvalidArgument) true.
func (e *ArgumentError) Is(target error) bool {
	return target == appext.ErrInvalidArgument
}

// Provisioner creates temporary host instances.
type Provisioner interface {
	// Provision creates an empty instance of a platform satisfying req.
	Provision(ctx context.Context, req appext.Requirement) (Instance, error)
}

// Instance is a temporary host instance.
type Instance interface {
	// Designer runs one batch designer command against the instance.
	Designer(ctx context.Context, args ...string) error

	// Destroy removes the instance. It must be safe to call once after
	// any Designer failure.
	Destroy() error
}

// Converter converts extensions between source and binary form.
type Converter struct {
	// Provisioner creates the temporary instances. Required.
	Provisioner Provisioner

	// ExtensionName is the scratch extension name. Default: DefaultExtensionName.
	ExtensionName string

	// Logger receives conversion logs. Default: zap.NewNop().
	Logger *zap.Logger
}

// ToBinary builds the binary package dest from the XML source tree srcDir
// and returns dest.
func (c *Converter) ToBinary(ctx context.Context, srcDir, dest string, req appext.Requirement) (string, error) {
	info, err := os.Stat(filepath.Join(srcDir, RootFile))
	if err != nil || info.IsDir() {
		return "", &ArgumentError{Path: srcDir, Reason: "invalid extension xml source"}
	}

	err = c.run(ctx, req, "to binary",
		[]string{"/LoadConfigFromFiles", srcDir},
		[]string{"/DumpCfg", dest},
	)
	if err != nil {
		return "", err
	}
	return dest, nil
}

// ToXML dumps the binary package binPath into the source tree dest and
// returns dest.
func (c *Converter) ToXML(ctx context.Context, binPath, dest string, req appext.Requirement) (string, error) {
	info, err := os.Stat(binPath)
	if err != nil || !info.Mode().IsRegular() {
		return "", &ArgumentError{Path: binPath, Reason: "extension must be a file"}
	}

	err = c.run(ctx, req, "to xml",
		[]string{"/LoadCfg", binPath},
		[]string{"/DumpConfigToFiles", dest},
	)
	if err != nil {
		return "", err
	}
	return dest, nil
}

// run provisions an instance, runs load then dump scoped to the scratch
// extension and destroys the instance.
func (c *Converter) run(ctx context.Context, req appext.Requirement, op string, load, dump []string) (err error) {
	if c.Provisioner == nil {
		return fmt.Errorf("%w: convert: Provisioner is required", appext.ErrInvalidConfig)
	}
	log := c.logger().With(zap.String("op", op), zap.Stringer("platform_require", req))

	inst, err := c.Provisioner.Provision(ctx, req)
	if err != nil {
		return fmt.Errorf("provision temporary instance: %w", err)
	}
	defer func() {
		if derr := inst.Destroy(); derr != nil {
			log.Warn("destroy temporary instance failed", zap.Error(derr))
			err = multierr.Append(err, fmt.Errorf("destroy temporary instance: %w", derr))
		}
	}()

	scope := []string{"-Extension", c.extensionName()}
	for _, cmd := range [][]string{load, dump} {
		args := append(append([]string{}, cmd...), scope...)
		log.Debug("designer", zap.Strings("args", args))
		if err := inst.Designer(ctx, args...); err != nil {
			return fmt.Errorf("convert %s: %s: %w", op, cmd[0], err)
		}
	}
	log.Info("converted", zap.String("dest", dump[1]))
	return nil
}

func (c *Converter) extensionName() string {
	if c.ExtensionName == "" {
		return DefaultExtensionName
	}
	return c.ExtensionName
}

func (c *Converter) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger.Named("convert")
}
