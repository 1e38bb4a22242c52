package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vpaa/eventcore/internal/model"
)

// GET /events/
func (s *Server) listEvents(c *fiber.Ctx) error {
	events, err := s.authority.ListEvents(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(events)
}

// POST /events/
func (s *Server) createEvent(c *fiber.Ctx) error {
	var body EventBody
	if err := s.bind(c, &body); err != nil {
		return err
	}
	e, err := s.authority.CreateEvent(c.UserContext(), body.Event())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(e)
}

// GET /events/:id
func (s *Server) getEvent(c *fiber.Ctx) error {
	e, err := s.authority.GetEvent(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(e)
}

// DELETE /events/:id
func (s *Server) deleteEvent(c *fiber.Ctx) error {
	if err := s.authority.DeleteEvent(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// POST /events/:id/join
func (s *Server) join(c *fiber.Ctx) error {
	var body JoinBody
	if err := s.bind(c, &body); err != nil {
		return err
	}
	req := body.Request()
	if err := req.Validate(); err != nil {
		return err
	}
	res, err := s.authority.Join(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return err
	}
	status := fiber.StatusCreated
	if res.Duplicate {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(res.Participant)
}

// POST /events/:id/roster
func (s *Server) importRoster(c *fiber.Ctx) error {
	var body RosterBody
	if err := s.bind(c, &body); err != nil {
		return err
	}
	rows := make([]model.JoinRequest, len(body.Rows))
	for i, r := range body.Rows {
		rows[i] = r.Request()
	}
	res, err := s.authority.ImportRoster(c.UserContext(), c.Params("id"), rows)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// GET /participants/:id
func (s *Server) getParticipant(c *fiber.Ctx) error {
	p, err := s.authority.GetParticipant(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(p)
}

// POST /participants/:id/mark_attendance
func (s *Server) markAttendance(c *fiber.Ctx) error {
	res, err := s.authority.MarkAttendance(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// POST /scan/qr
func (s *Server) scanQR(c *fiber.Ctx) error {
	var body ScanBody
	if err := s.bind(c, &body); err != nil {
		return err
	}
	res, err := s.authority.ScanQR(c.UserContext(), body.QRData, body.EventID)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// POST /participants/:id/submit_evaluation
func (s *Server) submitEvaluation(c *fiber.Ctx) error {
	var body EvaluationBody
	if err := s.bind(c, &body); err != nil {
		return err
	}
	p, err := s.authority.SubmitEvaluation(c.UserContext(), c.Params("id"), body.EvaluationData)
	if err != nil {
		return err
	}
	return c.JSON(p)
}

// POST /participants/:id/issue_certificate
func (s *Server) issueCertificate(c *fiber.Ctx) error {
	res, err := s.authority.IssueCertificate(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// POST /participants/:id/check_out
func (s *Server) checkOut(c *fiber.Ctx) error {
	p, err := s.authority.CheckOut(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(p)
}

// POST /accounts/
func (s *Server) createAccount(c *fiber.Ctx) error {
	var body AccountBody
	if err := s.bind(c, &body); err != nil {
		return err
	}
	acct, err := s.authority.CreateAccount(c.UserContext(), model.Account{ID: body.ID, Name: body.Name, Email: body.Email})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(acct)
}

// GET /accounts/:id
func (s *Server) getAccount(c *fiber.Ctx) error {
	acct, err := s.authority.GetAccount(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(acct)
}

// GET /certificates/verify/:code
func (s *Server) verifyCertificate(c *fiber.Ctx) error {
	v, err := s.authority.VerifyCertificate(c.UserContext(), c.Params("code"))
	if err != nil {
		return err
	}
	return c.JSON(v)
}

// POST /certificates/:number/mark_emailed
func (s *Server) markEmailed(c *fiber.Ctx) error {
	cert, err := s.authority.MarkCertificateEmailed(c.UserContext(), c.Params("number"))
	if err != nil {
		return err
	}
	return c.JSON(cert)
}

// GET /reports/:event_id
func (s *Server) eventReport(c *fiber.Ctx) error {
	r, err := s.authority.EventReport(c.UserContext(), c.Params("event_id"))
	if err != nil {
		return err
	}
	return c.JSON(r)
}
