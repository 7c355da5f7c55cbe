package trigger

import (
	"path"
	"strings"

	"github.com/sourceplane/liteflow/internal/model"
)

// matchesWildcard checks if a branch name matches a pattern. A trailing *
// matches any suffix, including further path segments.
func matchesWildcard(pattern, name string) bool {
	if pattern == "*" || pattern == "**" {
		return true
	}
	if strings.HasSuffix(pattern, "*") && !strings.ContainsAny(strings.TrimSuffix(pattern, "*"), "*?[") {
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	}
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

// matchesPath checks if a changed file matches a path pattern: a glob,
// a dir/** subtree, or a plain directory prefix
func matchesPath(pattern, file string) bool {
	pattern = strings.TrimPrefix(pattern, "./")
	if pattern == "*" || pattern == "**" {
		return true
	}
	if strings.HasSuffix(pattern, "/**") {
		dir := strings.TrimSuffix(pattern, "/**")
		return file == dir || strings.HasPrefix(file, dir+"/")
	}
	if ok, err := path.Match(pattern, file); err == nil && ok {
		return true
	}
	dir := strings.TrimSuffix(pattern, "/")
	return strings.HasPrefix(file, dir+"/")
}

// matchFilter applies include then exclude; an empty include list includes everything
func matchFilter(f model.Filter, name string, match func(pattern, name string) bool) bool {
	included := len(f.Include) == 0
	for _, pattern := range f.Include {
		if match(pattern, name) {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, pattern := range f.Exclude {
		if match(pattern, name) {
			return false
		}
	}
	return true
}
