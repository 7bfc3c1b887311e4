package server

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fileferry/internal/command"
	"fileferry/internal/shared/errs"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type streamRequest struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

type streamResponse struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	File  string `json:"file,omitempty"`
	Size  int64  `json:"size,omitempty"`
	Error string `json:"error,omitempty"`
}

// handleStream runs a command loop over one websocket connection. The
// operator identity comes from the query string and is fixed for the
// connection's lifetime. File replies are announced with a JSON frame
// and delivered as the following binary frame.
func (s *Server) handleStream(c *gin.Context) {
	operator := c.Query("operator")
	if operator == "" {
		c.JSON(http.StatusBadRequest, commandResponse{Status: "error", Error: "operator query parameter is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	for {
		var req streamRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("websocket closed", zap.String("operator", operator), zap.Error(err))
			}
			return
		}
		if req.Command == "" {
			_ = conn.WriteJSON(streamResponse{Type: "error", Error: "command is required"})
			continue
		}

		reply := s.dispatcher.Dispatch(ctx, operator, req.Command, req.Args)
		if err := s.writeStreamReply(conn, reply); err != nil {
			s.log.Debug("websocket write failed", zap.String("operator", operator), zap.Error(err))
			return
		}
	}
}

func (s *Server) writeStreamReply(conn *websocket.Conn, reply *command.Reply) error {
	switch reply.Kind {
	case command.ReplyFile:
		if err := conn.WriteJSON(streamResponse{Type: "file", File: reply.FileName, Size: reply.FileSize}); err != nil {
			return err
		}
		data, err := os.ReadFile(reply.FilePath)
		if reply.Cleanup {
			s.removePayload(reply.FilePath)
		}
		if err != nil {
			return conn.WriteJSON(streamResponse{Type: "error", Error: "payload unavailable"})
		}
		return conn.WriteMessage(websocket.BinaryMessage, data)
	case command.ReplyError:
		return conn.WriteJSON(streamResponse{Type: "error", Error: errs.UserMessage(reply.Err)})
	default:
		return conn.WriteJSON(streamResponse{Type: "text", Text: reply.Text})
	}
}
