package server

import "net/http"

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	rangeName := r.URL.Query().Get("range")
	res, err := s.app.CalendarService.GetCalendar(r.Context(), rangeName, ParseBool(r, "watchlist"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	SetMaxAge(w, maxAgeFor(res.Source))
	WriteJSON(w, statusFor(res.Source), res)
}
