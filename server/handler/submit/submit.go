package submit

import (
	"net/http"

	"github.com/indieinfra/plume/ingest"
	"github.com/indieinfra/plume/server/auth"
	"github.com/indieinfra/plume/server/handler/common"
	"github.com/indieinfra/plume/server/resp"
	"github.com/indieinfra/plume/server/state"
	"github.com/indieinfra/plume/server/util"
)

// HandleSubmit accepts a multipart upload with a "file" part and the
// optional title, description, license, tags and slug fields.
func HandleSubmit(st *state.PlumeState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := auth.GetUser(r.Context())
		if user == nil {
			resp.WriteUnauthorized(w, "An access token is required")
			return
		}

		if _, ok := util.RequireMultipart(w, r); !ok {
			return
		}

		limits := st.Cfg.Server.Limits
		pm, err := util.ParseMultipart(w, r, int64(limits.MaxPayloadSize), int64(limits.MaxMultipartMem))
		if err != nil {
			if util.IsTooLarge(err) {
				resp.WriteInvalidRequest(w, "Request too large")
				return
			}
			resp.WriteInvalidRequest(w, "Malformed multipart body")
			return
		}
		defer pm.CloseFiles()

		sub := ingest.Submission{
			Title:       pm.Value("title"),
			Description: pm.Value("description"),
			License:     pm.Value("license"),
			Tags:        pm.Value("tags"),
			Slug:        pm.Value("slug"),
		}
		if f := pm.FileByKey("file"); f != nil {
			sub.File = f.File
			sub.Filename = f.Header.Filename
		}

		e, err := st.Submitter.Submit(r.Context(), user, sub)
		if err != nil {
			common.LogAndWriteError(w, r, st.Log, "submit", err)
			return
		}

		location := st.AbsoluteURL(common.EntryPath(user.Username, e))
		resp.WriteCreated(w, location, common.NewEntryView(user.Username, location, e, st.Manager(e.MediaType)))
	}
}
