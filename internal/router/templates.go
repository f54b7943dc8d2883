package router

import (
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"time"

	"github.com/gin-contrib/multitemplate"
)

var funcMap = template.FuncMap{
	"dict": func(values ...interface{}) (map[string]interface{}, error) {
		if len(values)%2 != 0 {
			return nil, fmt.Errorf("invalid dict call")
		}
		dict := make(map[string]interface{}, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			key, ok := values[i].(string)
			if !ok {
				return nil, fmt.Errorf("dict keys must be strings")
			}
			dict[key] = values[i+1]
		}
		return dict, nil
	},
	// 每层缩进 1.5rem
	"indent": func(depth int) float64 {
		return float64(depth) * 1.5
	},
	"timeAgo": timeAgo,
}

func timeAgo(t time.Time) string {
	seconds := int(time.Since(t).Seconds())
	if seconds < 0 {
		seconds = 0
	}
	if seconds < 60 {
		return fmt.Sprintf("%d秒前", seconds)
	} else if seconds < 3600 {
		return fmt.Sprintf("%d分钟前", seconds/60)
	} else if seconds < 86400 {
		return fmt.Sprintf("%d小时前", seconds/3600)
	} else if seconds < 2592000 {
		return fmt.Sprintf("%d天前", seconds/86400)
	} else if seconds < 31536000 {
		return fmt.Sprintf("%d个月前", seconds/2592000)
	}
	return fmt.Sprintf("%d年前", seconds/31536000)
}

// loadTemplates registers each view with the shared components. The first
// file of each entry is the template that gets executed.
func loadTemplates(fsys fs.FS) (multitemplate.Renderer, error) {
	r := multitemplate.NewRenderer()

	components, err := fs.Glob(fsys, "templates/components/*.html")
	if err != nil {
		return nil, err
	}

	views := map[string]string{
		"comment/thread.html": "templates/views/comment/thread.html",
		"comment/error.html":  "templates/views/comment/error.html",
	}
	for name, view := range views {
		files := append([]string{view}, components...)
		tmpl, err := template.New(path.Base(view)).Funcs(funcMap).ParseFS(fsys, files...)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		r.Add(name, tmpl)
	}
	return r, nil
}
