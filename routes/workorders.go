package routes

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"fossawork-backend/internal/store"
	"fossawork-backend/middleware"
	"fossawork-backend/models"
	"fossawork-backend/utils"
)

func SetupWorkOrderRoutes(router *gin.Engine, st *store.Store, authMW *middleware.AuthMiddleware) {
	api := router.Group("/api", authMW.RequireAuth())

	api.GET("/workorders", func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		orders, err := st.ListWorkOrders(c.Request.Context(), userID)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load work orders", nil)
			return
		}
		if orders == nil {
			orders = []models.WorkOrder{}
		}
		c.JSON(http.StatusOK, gin.H{"work_orders": orders, "count": len(orders)})
	})

	api.GET("/workorders/export", func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		orders, err := st.ListWorkOrders(c.Request.Context(), userID)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load work orders", nil)
			return
		}

		f, err := buildWorkOrderWorkbook(orders)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to build export", nil)
			return
		}

		filename := fmt.Sprintf("workorders-%s.xlsx", time.Now().Format("2006-01-02"))
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		if err := f.Write(c.Writer); err != nil {
			c.Status(http.StatusInternalServerError)
		}
	})
}

func buildWorkOrderWorkbook(orders []models.WorkOrder) (*excelize.File, error) {
	f := excelize.NewFile()
	const sheet = "Work Orders"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	_ = f.DeleteSheet("Sheet1")

	headers := []string{"Order #", "Store", "Customer", "Address", "Service", "Status", "Visit Date", "Dispensers", "First Seen"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}

	for row, o := range orders {
		visit := ""
		if o.VisitDate != nil {
			visit = o.VisitDate.Format("01/02/2006")
		}
		service := o.ServiceDesc
		if o.ServiceCode != "" {
			service = o.ServiceCode + " - " + o.ServiceDesc
		}
		values := []any{
			o.ExternalID, o.StoreNumber, o.CustomerName, o.Address,
			service, o.Status, visit, len(o.Dispensers),
			o.FirstSeenAt.Format("01/02/2006"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}
