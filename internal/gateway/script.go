package gateway

import (
	"bytes"
	"embed"
	"fmt"
	"path"
	"regexp"
	"strings"
	"text/template"
)

//go:embed templates/slurm.sh.tmpl
var templateFS embed.FS

var scriptTemplate = template.Must(
	template.New("slurm.sh.tmpl").
		Funcs(template.FuncMap{"join": strings.Join}).
		ParseFS(templateFS, "templates/slurm.sh.tmpl"),
)

// ScriptSpec describes a containerised batch job to render into a Slurm script.
type ScriptSpec struct {
	Image        string   `json:"image"`
	Command      string   `json:"command"`
	Nodes        int      `json:"nodes"`
	TasksPerNode int      `json:"ntasks_per_node"`
	TimeLimit    string   `json:"time"`
	Partition    string   `json:"partition"`
	Modules      []string `json:"modules"`
}

type scriptData struct {
	ScriptSpec
	JobName string
	Workdir string
}

var (
	timeLimitPattern = regexp.MustCompile(`^(\d+-)?\d{1,2}:\d{2}:\d{2}$`)
	tokenPattern     = regexp.MustCompile(`^[A-Za-z0-9._:/@+-]+$`)
)

func (s *ScriptSpec) normalize() error {
	if s.Nodes == 0 {
		s.Nodes = 1
	}
	if s.TasksPerNode == 0 {
		s.TasksPerNode = 1
	}
	if s.TimeLimit == "" {
		s.TimeLimit = "01:00:00"
	}

	switch {
	case s.Image == "" || !tokenPattern.MatchString(s.Image):
		return fmt.Errorf("image %q is not a valid container reference", s.Image)
	case strings.TrimSpace(s.Command) == "" || strings.ContainsAny(s.Command, "\n\r"):
		return fmt.Errorf("command must be a single non-empty line")
	case s.Nodes < 0 || s.TasksPerNode < 0:
		return fmt.Errorf("nodes and ntasks_per_node must be positive")
	case !timeLimitPattern.MatchString(s.TimeLimit):
		return fmt.Errorf("time %q is not a Slurm time limit", s.TimeLimit)
	case s.Partition != "" && !tokenPattern.MatchString(s.Partition):
		return fmt.Errorf("partition %q is invalid", s.Partition)
	}
	for _, m := range s.Modules {
		if !tokenPattern.MatchString(m) {
			return fmt.Errorf("module %q is invalid", m)
		}
	}
	return nil
}

// RenderScript renders the batch script for a job whose working directory is workdir.
func RenderScript(spec ScriptSpec, workdir string) ([]byte, error) {
	if err := spec.normalize(); err != nil {
		return nil, newError(CodeInvalidInput, err.Error(), nil)
	}

	var buf bytes.Buffer
	err := scriptTemplate.Execute(&buf, scriptData{
		ScriptSpec: spec,
		JobName:    "mp-" + path.Base(workdir),
		Workdir:    workdir,
	})
	if err != nil {
		return nil, fmt.Errorf("render job script: %w", err)
	}
	return buf.Bytes(), nil
}
