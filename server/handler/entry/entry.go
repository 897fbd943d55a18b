package entry

import (
	"net/http"

	"github.com/indieinfra/plume/server/handler/common"
	"github.com/indieinfra/plume/server/resp"
	"github.com/indieinfra/plume/server/state"
)

// HandleGet serves GET /u/{user}/m/{media}/ as JSON.
func HandleGet(st *state.PlumeState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, e, err := common.ResolveEntry(r.Context(), st.Store, r.PathValue("user"), r.PathValue("media"))
		if err != nil {
			common.LogAndWriteError(w, r, st.Log, "get entry", err)
			return
		}

		url := st.AbsoluteURL(common.EntryPath(user.Username, e))
		resp.WriteOK(w, common.NewEntryView(user.Username, url, e, st.Manager(e.MediaType)))
	}
}
