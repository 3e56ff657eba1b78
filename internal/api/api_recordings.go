package api //nolint:revive

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bluenviron/camrecorder/internal/conf"
)

// recordDir returns the part of the record path that does not contain variables.
func recordDir(recordPath string) string {
	common := ""
	remaining := recordPath

	for {
		i := strings.IndexAny(remaining, "\\/")
		if i < 0 {
			break
		}

		var part string
		part, remaining = remaining[:i+1], remaining[i+1:]

		if strings.Contains(part, "%") {
			break
		}

		common += part
	}

	if len(common) > 0 {
		common = common[:len(common)-1]
	}

	if common == "" {
		return "."
	}

	return common
}

func findRecordings(c *conf.Conf) ([]APIRecording, error) {
	dir := recordDir(c.RecordPath)
	ext := c.RecordFormat.Extension()

	var out []APIRecording

	err := filepath.WalkDir(dir, func(fpath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// spool files are hidden
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") || !strings.HasSuffix(d.Name(), ext) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil //nolint:nilerr
		}

		rel, err := filepath.Rel(dir, fpath)
		if err != nil {
			return err
		}

		out = append(out, APIRecording{
			Name:     filepath.ToSlash(rel),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})

	return out, nil
}

func (a *API) onRecordingsList(ctx *gin.Context) {
	a.mutex.RLock()
	c := a.Conf
	a.mutex.RUnlock()

	items, err := findRecordings(c)
	if err != nil {
		a.writeError(ctx, http.StatusInternalServerError, err)
		return
	}

	data := APIRecordingList{}

	data.ItemCount = len(items)
	items, data.PageCount, err = paginate(items, ctx.Query("itemsPerPage"), ctx.Query("page"))
	if err != nil {
		a.writeError(ctx, http.StatusBadRequest, err)
		return
	}

	data.Items = items
	if data.Items == nil {
		data.Items = []APIRecording{}
	}

	ctx.JSON(http.StatusOK, data)
}

func (a *API) onRecordingsDelete(ctx *gin.Context) {
	name := ctx.Query("name")

	a.mutex.RLock()
	c := a.Conf
	a.mutex.RUnlock()

	if !filepath.IsLocal(filepath.FromSlash(name)) ||
		!strings.HasSuffix(name, c.RecordFormat.Extension()) {
		a.writeError(ctx, http.StatusBadRequest, fmt.Errorf("invalid name"))
		return
	}

	err := os.Remove(filepath.Join(recordDir(c.RecordPath), filepath.FromSlash(name)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			a.writeError(ctx, http.StatusNotFound, fmt.Errorf("recording not found"))
			return
		}
		a.writeError(ctx, http.StatusBadRequest, err)
		return
	}

	a.writeOK(ctx)
}
