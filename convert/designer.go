package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-version"
	"go.uber.org/zap"

	appext "github.com/masegraye/appext-go"
)

// ErrNoPlatform is returned when no installed platform satisfies a requirement.
var ErrNoPlatform = errors.New("no matching platform installed")

// DesignerConfig configures a DesignerProvisioner.
type DesignerConfig struct {
	// Platforms maps an installed platform version to its executable.
	// Required. Example: {"8.3.10.2580": "C:/Program Files/1cv8/8.3.10.2580/bin/1cv8.exe"}
	Platforms map[string]string

	// TempDir is where temporary instances are created. Default: os.TempDir().
	TempDir string

	// Logger receives provisioner logs. Default: zap.NewNop().
	Logger *zap.Logger
}

// Validate checks DesignerConfig for errors.
func (cfg *DesignerConfig) Validate() error {
	if len(cfg.Platforms) == 0 {
		return fmt.Errorf("%w: at least one platform is required", appext.ErrInvalidConfig)
	}
	for v, bin := range cfg.Platforms {
		if _, err := version.NewVersion(v); err != nil {
			return fmt.Errorf("%w: platform version %q: %v", appext.ErrInvalidConfig, v, err)
		}
		if bin == "" {
			return fmt.Errorf("%w: platform %s has no executable", appext.ErrInvalidConfig, v)
		}
	}
	return nil
}

// DesignerProvisioner creates temporary file instances with the platform
// executable and runs batch designer commands against them.
type DesignerProvisioner struct {
	platforms map[string]string
	tempDir   string
	log       *zap.Logger

	// command builds the process for a platform run.
	command func(ctx context.Context, bin string, args ...string) *exec.Cmd
}

var _ Provisioner = (*DesignerProvisioner)(nil)

// NewDesignerProvisioner creates a provisioner from cfg.
func NewDesignerProvisioner(cfg DesignerConfig) (*DesignerProvisioner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DesignerProvisioner{
		platforms: cfg.Platforms,
		tempDir:   tempDir,
		log:       logger.Named("designer"),
		command:   exec.CommandContext,
	}, nil
}

// ResolvePlatform returns the highest platform version in platforms that
// satisfies req, and its executable.
func ResolvePlatform(platforms map[string]string, req appext.Requirement) (string, string, error) {
	versions := make([]*version.Version, 0, len(platforms))
	raw := make(map[*version.Version]string, len(platforms))
	for v := range platforms {
		parsed, err := version.NewVersion(v)
		if err != nil {
			return "", "", fmt.Errorf("%w: platform version %q: %v", appext.ErrInvalidConfig, v, err)
		}
		versions = append(versions, parsed)
		raw[parsed] = v
	}
	sort.Sort(sort.Reverse(version.Collection(versions)))

	for _, v := range versions {
		ok, err := req.SatisfiedBy(v.String())
		if err != nil {
			return "", "", err
		}
		if ok {
			return raw[v], platforms[raw[v]], nil
		}
	}
	return "", "", fmt.Errorf("%w: %s", ErrNoPlatform, req)
}

// Provision creates an empty file instance in a new temp directory.
func (p *DesignerProvisioner) Provision(ctx context.Context, req appext.Requirement) (Instance, error) {
	ver, bin, err := ResolvePlatform(p.platforms, req)
	if err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp(p.tempDir, "appext-ib-*")
	if err != nil {
		return nil, fmt.Errorf("create instance dir: %w", err)
	}

	inst := &designerInstance{
		p:   p,
		bin: bin,
		dir: dir,
		log: p.log.With(zap.String("platform", ver), zap.String("dir", dir)),
	}
	if err := inst.exec(ctx, "CREATEINFOBASE", fmt.Sprintf(`File="%s"`, dir)); err != nil {
		inst.Destroy()
		return nil, fmt.Errorf("create instance: %w", err)
	}
	inst.log.Debug("instance created")
	return inst, nil
}

type designerInstance struct {
	p   *DesignerProvisioner
	bin string
	dir string
	log *zap.Logger
}

func (i *designerInstance) Designer(ctx context.Context, args ...string) error {
	base := []string{"DESIGNER", "/F", i.dir, "/DisableStartupDialogs", "/DisableStartupMessages"}
	return i.exec(ctx, append(base, args...)...)
}

func (i *designerInstance) Destroy() error {
	if err := os.RemoveAll(i.dir); err != nil {
		return err
	}
	i.log.Debug("instance destroyed")
	return nil
}

// exec runs the platform with args and an /Out log. A non-zero exit
// returns the log text.
func (i *designerInstance) exec(ctx context.Context, args ...string) error {
	out := filepath.Join(i.dir, "out.log")
	args = append(args, "/Out", out)

	cmd := i.p.command(ctx, i.bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := readLog(out)
		if msg == "" {
			msg = strings.TrimSpace(stderr.String())
		}
		return fmt.Errorf("%s %s failed: %w: %s", filepath.Base(i.bin), args[0], err, msg)
	}
	return nil
}

// readLog returns the trimmed designer log and removes it. Missing logs
// read as empty.
func readLog(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	os.Remove(path)
	return strings.TrimSpace(string(b))
}
