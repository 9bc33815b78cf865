package handler

import (
	"net/http"

	"trapkitchen/internal/store"
)

func ListDishesHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dishes, err := st.ListDishes(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, dishes)
	}
}
