package configs

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

var ErrValueNotFound = errors.New("config value not found")

// Loader reads CUE files lazily, once. Earlier files take precedence.
type Loader struct {
	getRoots func() ([]rootInfo, error)
}

type rootInfo struct {
	value cue.Value
	path  string
}

func NewLoader(filePaths []string, schemaSrc string) Loader {
	return Loader{
		getRoots: sync.OnceValues(func() (ret []rootInfo, err error) {
			ctx := cuecontext.New()

			var schema cue.Value
			if schemaSrc != "" {
				schema = ctx.CompileString("close({" + schemaSrc + "})")
				if err := schema.Err(); err != nil {
					return nil, fmt.Errorf("schema: %w", err)
				}
			}

			for _, filePath := range filePaths {
				content, err := os.ReadFile(filePath)
				if err != nil {
					return nil, err
				}
				value := ctx.CompileBytes(content, cue.Filename(filePath))
				if err := value.Err(); err != nil {
					return nil, err
				}
				if schema.Exists() {
					if err := schema.Unify(value).Validate(cue.Concrete(true)); err != nil {
						return nil, fmt.Errorf("%s: %w", filePath, err)
					}
				}
				ret = append(ret, rootInfo{
					value: value,
					path:  filePath,
				})
			}
			return
		}),
	}
}

// Assign decodes the first file defining path into target.
func (l Loader) Assign(path string, target any) error {
	roots, err := l.getRoots()
	if err != nil {
		return err
	}
	cuePath := cue.ParsePath(path)
	for _, info := range roots {
		value := info.value.LookupPath(cuePath)
		if !value.Exists() || value.Err() != nil {
			continue
		}
		if err := value.Decode(target); err != nil {
			return fmt.Errorf("%s: %s: %w", info.path, path, err)
		}
		return nil
	}
	return fmt.Errorf("%s: %w", path, ErrValueNotFound)
}

// First is Assign for a single value, leaving the zero value when no file sets it.
func First[T any](loader Loader, path string) (T, bool, error) {
	var value T
	if err := loader.Assign(path, &value); err != nil {
		if errors.Is(err, ErrValueNotFound) {
			return value, false, nil
		}
		return value, false, err
	}
	return value, true, nil
}
