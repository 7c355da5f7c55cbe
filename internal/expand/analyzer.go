package expand

import (
	"sort"

	"github.com/sourceplane/liteflow/internal/model"
)

// JobGroup summarizes all instances expanded from one job entry
type JobGroup struct {
	Name         string
	Template     string
	Axes         []string
	Instances    []*model.JobInstance
	Dependencies []string
}

// JobAnalyzer groups expanded instances by the job entry they came from
type JobAnalyzer struct {
	instances []*model.JobInstance
	groups    map[string]*JobGroup
}

// NewJobAnalyzer creates a new job analyzer over expanded instances
func NewJobAnalyzer(instances []*model.JobInstance) *JobAnalyzer {
	return &JobAnalyzer{instances: instances}
}

func (ja *JobAnalyzer) analyze() map[string]*JobGroup {
	if ja.groups != nil {
		return ja.groups
	}

	ja.groups = make(map[string]*JobGroup)
	for _, inst := range ja.instances {
		group, exists := ja.groups[inst.Group]
		if !exists {
			group = &JobGroup{
				Name:         inst.Group,
				Template:     inst.Template,
				Axes:         make([]string, 0, len(inst.Coordinate)),
				Instances:    make([]*model.JobInstance, 0),
				Dependencies: make([]string, 0),
			}
			for axis := range inst.Coordinate {
				group.Axes = append(group.Axes, axis)
			}
			sort.Strings(group.Axes)
			ja.groups[inst.Group] = group
		}

		group.Instances = append(group.Instances, inst)
		for _, dep := range inst.DependsOn {
			if !contains(group.Dependencies, dep.Job) {
				group.Dependencies = append(group.Dependencies, dep.Job)
			}
		}
	}

	for _, group := range ja.groups {
		sort.Strings(group.Dependencies)
	}
	return ja.groups
}

// GetGroup returns the group named name, or nil
func (ja *JobAnalyzer) GetGroup(name string) *JobGroup {
	return ja.analyze()[name]
}

// ListAll lists all job groups sorted by name
func (ja *JobAnalyzer) ListAll() []*JobGroup {
	groups := ja.analyze()

	result := make([]*JobGroup, 0, len(groups))
	for _, group := range groups {
		result = append(result, group)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
